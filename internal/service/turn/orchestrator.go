package turn

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/einstein-live/backend/internal/metrics"
	session "github.com/zhouzirui/einstein-live/backend/internal/model/session"
	"github.com/zhouzirui/einstein-live/backend/internal/service/audio"
	"github.com/zhouzirui/einstein-live/backend/internal/service/transcribe"
)

// ErrSessionInvalid is the admission-control failure: the session does not
// exist or teardown has already begun.
var ErrSessionInvalid = errors.New("invalid or inactive session")

// Normalizer converts raw browser audio into mono 16 kHz WAV.
type Normalizer interface {
	Normalize(ctx context.Context, input []byte) ([]byte, error)
}

// Transcriber recognizes speech from normalized audio.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, lang session.Language) (*transcribe.Result, error)
}

// Responder generates the persona reply; it never fails outward.
type Responder interface {
	Respond(ctx context.Context, history []session.Turn, transcript string, lang session.Language) string
}

// Dispatcher pushes reply text to the remote avatar.
type Dispatcher interface {
	SendText(ctx context.Context, sessionID, text string) error
}

// EventSink receives completed turns for live caption subscribers.
type EventSink interface {
	PublishTurn(sessionID, userInput, response string)
}

// Result is the successful outcome of one turn.
type Result struct {
	UserInput string
	Response  string
}

// Orchestrator drives one audio turn through the pipeline:
// validate → convert → transcribe → generate → dispatch.
type Orchestrator struct {
	registry    *session.Registry
	normalizer  Normalizer
	transcriber Transcriber
	responder   Responder
	dispatcher  Dispatcher
	events      EventSink
	metrics     *metrics.Metrics
}

// NewOrchestrator wires the turn pipeline. events may be nil.
func NewOrchestrator(
	registry *session.Registry,
	normalizer Normalizer,
	transcriber Transcriber,
	responder Responder,
	dispatcher Dispatcher,
	events EventSink,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		normalizer:  normalizer,
		transcriber: transcriber,
		responder:   responder,
		dispatcher:  dispatcher,
		events:      events,
		metrics:     m,
	}
}

// ProcessTurn handles one user utterance. Stages run strictly in order;
// turns on the same session are serialized so the dialogue context stays
// coherent. A dispatch failure does not fail the turn: once transcription
// and generation succeeded the caller still gets transcript and reply.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID string, rawAudio []byte, lang session.Language) (*Result, error) {
	turnID := uuid.NewString()
	started := time.Now()

	// Validating
	sess, err := o.registry.Get(sessionID)
	if err != nil || !sess.Active() {
		o.metrics.Turns.WithLabelValues("session_invalid").Inc()
		return nil, ErrSessionInvalid
	}

	sess.AcquireTurn()
	defer sess.ReleaseTurn()

	// Admission may have been revoked while waiting for the turn lock.
	if !sess.Active() {
		o.metrics.Turns.WithLabelValues("session_invalid").Inc()
		return nil, ErrSessionInvalid
	}

	// Converting
	convertStart := time.Now()
	wav, err := o.normalizer.Normalize(ctx, rawAudio)
	o.observeStage("convert", convertStart)
	if err != nil {
		log.Printf("[turn] id=%s session=%s conversion failed: %v", turnID, sessionID, err)
		o.metrics.ConversionFailures.Inc()
		o.metrics.Turns.WithLabelValues("conversion_failed").Inc()
		return nil, err
	}

	// Transcribing
	transcribeStart := time.Now()
	transcript, err := o.transcriber.Transcribe(ctx, wav, lang)
	o.observeStage("transcribe", transcribeStart)
	if err != nil {
		if errors.Is(err, transcribe.ErrNoSpeech) {
			o.metrics.TranscriptionFailures.WithLabelValues("no_speech").Inc()
		} else {
			log.Printf("[turn] id=%s session=%s transcription failed: %v", turnID, sessionID, err)
			o.metrics.TranscriptionFailures.WithLabelValues("service_error").Inc()
		}
		o.metrics.Turns.WithLabelValues("transcription_failed").Inc()
		return nil, err
	}

	// Generating — never fails outward, the engine falls back internally.
	reply := o.responder.Respond(ctx, sess.History(), transcript.Text, lang)
	sess.AppendExchange(transcript.Text, reply)

	// Dispatching — a missed avatar utterance is not fatal to the turn.
	if err := o.dispatcher.SendText(ctx, sessionID, reply); err != nil {
		log.Printf("[turn] id=%s session=%s avatar dispatch failed: %v", turnID, sessionID, err)
		o.metrics.DispatchFailures.Inc()
	}

	// Done
	o.registry.Touch(sessionID)
	if o.events != nil {
		o.events.PublishTurn(sessionID, transcript.Text, reply)
	}
	o.metrics.Turns.WithLabelValues("ok").Inc()
	o.metrics.TurnDuration.Observe(time.Since(started).Seconds())

	return &Result{UserInput: transcript.Text, Response: reply}, nil
}

// IsConversionFailure reports whether a turn failed in the convert stage.
func IsConversionFailure(err error) bool {
	return errors.Is(err, audio.ErrConversionFailed)
}

func (o *Orchestrator) observeStage(stage string, started time.Time) {
	o.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
