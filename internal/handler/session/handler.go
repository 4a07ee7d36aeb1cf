package session

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/einstein-live/backend/internal/handler/events"
	"github.com/zhouzirui/einstein-live/backend/internal/metrics"
	sessionModel "github.com/zhouzirui/einstein-live/backend/internal/model/session"
	"github.com/zhouzirui/einstein-live/backend/internal/service/avatar"
	"github.com/zhouzirui/einstein-live/backend/internal/service/dialogue"
	"github.com/zhouzirui/einstein-live/backend/pkg/utils"
)

// AvatarClient 抽象远端数字人会话协议，便于测试与替换实现
type AvatarClient interface {
	CreateSession(ctx context.Context) (*avatar.SessionInfo, error)
	StartSession(ctx context.Context, sessionID string) error
	SendText(ctx context.Context, sessionID, text string) error
	StopSession(ctx context.Context, sessionID string) error
}

// Handler 会话生命周期的HTTP处理器
type Handler struct {
	registry  *sessionModel.Registry
	avatarSvc AvatarClient
	hub       *events.Hub
	metrics   *metrics.Metrics
}

// New 创建会话处理器
func New(registry *sessionModel.Registry, avatarSvc AvatarClient, hub *events.Hub, m *metrics.Metrics) *Handler {
	return &Handler{
		registry:  registry,
		avatarSvc: avatarSvc,
		hub:       hub,
		metrics:   m,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/create", h.handleCreate)
	r.Post("/session/stop", h.handleStop)
}

// handleCreate provisions the remote avatar session, registers the local
// half and greets the user through the avatar.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InterfaceLanguage string `json:"interfaceLanguage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.avatarSvc == nil {
		utils.RespondFailure(w, "Failed to create session")
		return
	}

	lang := sessionModel.LanguageFromCode(payload.InterfaceLanguage)

	info, err := h.avatarSvc.CreateSession(r.Context())
	if err != nil {
		log.Printf("[session] remote create failed: %v", err)
		utils.RespondFailure(w, "Failed to create session")
		return
	}

	sess, err := h.registry.Create(sessionModel.Init{
		ID:          info.SessionID,
		AccessToken: info.AccessToken,
		StreamURL:   info.URL,
		Language:    lang,
	})
	if err != nil {
		log.Printf("[session] registry create failed for id=%s: %v", info.SessionID, err)
		h.stopRemote(r.Context(), info.SessionID)
		utils.RespondFailure(w, "Failed to create session")
		return
	}

	if err := h.avatarSvc.StartSession(r.Context(), sess.ID); err != nil {
		log.Printf("[session] remote start failed for id=%s: %v", sess.ID, err)
		h.registry.DeactivateAndRemove(sess.ID)
		h.stopRemote(r.Context(), sess.ID)
		utils.RespondFailure(w, "Failed to create session")
		return
	}

	// Greeting is best-effort; a silent avatar is still a usable session.
	if err := h.avatarSvc.SendText(r.Context(), sess.ID, dialogue.Greeting(lang)); err != nil {
		log.Printf("[session] greeting failed for id=%s: %v", sess.ID, err)
	}

	h.metrics.SessionsCreated.Inc()
	h.metrics.ActiveSessions.Set(float64(h.registry.Len()))
	log.Printf("[session] created id=%s language=%s", sess.ID, lang)

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"sessionId":   sess.ID,
		"accessToken": sess.AccessToken,
		"url":         sess.StreamURL,
	})
}

// handleStop tears the session down. The local half always wins: even if
// the remote stop errors, the session is gone from the registry.
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.SessionID == "" || !h.registry.DeactivateAndRemove(payload.SessionID) {
		utils.RespondFailure(w, "Failed to stop session")
		return
	}

	h.stopRemote(r.Context(), payload.SessionID)
	if h.hub != nil {
		h.hub.PublishSessionClosed(payload.SessionID)
	}
	h.metrics.SessionsStopped.Inc()
	h.metrics.ActiveSessions.Set(float64(h.registry.Len()))
	log.Printf("[session] stopped id=%s", payload.SessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) stopRemote(ctx context.Context, sessionID string) {
	if h.avatarSvc == nil {
		return
	}
	if err := h.avatarSvc.StopSession(ctx, sessionID); err != nil {
		log.Printf("[session] remote stop failed for id=%s: %v", sessionID, err)
	}
}
