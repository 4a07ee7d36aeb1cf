package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the Prometheus instruments for the avatar service.
type Metrics struct {
	SessionsCreated prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionsSwept   prometheus.Counter
	ActiveSessions  prometheus.Gauge

	Turns        *prometheus.CounterVec // by outcome
	TurnDuration prometheus.Histogram

	StageDuration *prometheus.HistogramVec // by pipeline stage

	ConversionFailures    prometheus.Counter
	TranscriptionFailures *prometheus.CounterVec // by kind
	DispatchFailures      prometheus.Counter
	AvatarCreateRetries   prometheus.Counter
}

// New registers all instruments on the given registerer. Tests pass a
// fresh registry so parallel suites never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_sessions_created_total",
			Help: "Total number of avatar sessions created",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_sessions_stopped_total",
			Help: "Total number of avatar sessions stopped explicitly",
		}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_sessions_swept_total",
			Help: "Total number of idle avatar sessions swept",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "avatar_active_sessions",
			Help: "Current number of active avatar sessions",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "avatar_turns_total",
			Help: "Total number of audio turns processed",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "avatar_turn_duration_seconds",
			Help:    "End-to-end duration of audio turns",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "avatar_turn_stage_duration_seconds",
			Help:    "Duration of individual turn pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		ConversionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_audio_conversion_failures_total",
			Help: "Total number of audio normalization failures",
		}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "avatar_transcription_failures_total",
			Help: "Total number of transcription failures",
		}, []string{"kind"}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_dispatch_failures_total",
			Help: "Total number of avatar send-text failures",
		}),
		AvatarCreateRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "avatar_create_retries_total",
			Help: "Total number of retried avatar session creations",
		}),
	}
}
