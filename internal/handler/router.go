package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/einstein-live/backend/internal/handler/events"
	sessionHandler "github.com/zhouzirui/einstein-live/backend/internal/handler/session"
	turnHandler "github.com/zhouzirui/einstein-live/backend/internal/handler/turn"
	"github.com/zhouzirui/einstein-live/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/einstein-live/backend/internal/middleware"
	sessionModel "github.com/zhouzirui/einstein-live/backend/internal/model/session"
	"github.com/zhouzirui/einstein-live/backend/pkg/utils"
)

// NewRouter 装配全部HTTP路由。
func NewRouter(
	registry *sessionModel.Registry,
	avatarSvc sessionHandler.AvatarClient,
	processor turnHandler.Processor,
	hub *events.Hub,
	m *metrics.Metrics,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		sessionHandler.New(registry, avatarSvc, hub, m).RegisterRoutes(api)
		turnHandler.New(processor).RegisterRoutes(api)

		if hub != nil {
			events.NewHandler(hub, registry).RegisterRoutes(api)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "einstein-live-backend",
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
