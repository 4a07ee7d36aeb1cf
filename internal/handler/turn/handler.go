package turn

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	sessionModel "github.com/zhouzirui/einstein-live/backend/internal/model/session"
	"github.com/zhouzirui/einstein-live/backend/internal/service/transcribe"
	turnService "github.com/zhouzirui/einstein-live/backend/internal/service/turn"
	"github.com/zhouzirui/einstein-live/backend/pkg/utils"
)

// Processor 抽象回合编排器，便于测试
type Processor interface {
	ProcessTurn(ctx context.Context, sessionID string, rawAudio []byte, lang sessionModel.Language) (*turnService.Result, error)
}

// Handler 音频回合的HTTP处理器
type Handler struct {
	processor Processor
}

// New 创建回合处理器
func New(processor Processor) *Handler {
	return &Handler{processor: processor}
}

// RegisterRoutes 注册回合相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/process_audio", h.handleProcessAudio)
}

func (h *Handler) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		utils.RespondFailure(w, "Failed to process audio")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		utils.RespondFailure(w, "Invalid or inactive session")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		utils.RespondFailure(w, "No audio file")
		return
	}
	defer file.Close()

	rawAudio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondFailure(w, "No audio file")
		return
	}

	lang := sessionModel.LanguageFromCode(r.FormValue("interfaceLanguage"))

	result, err := h.processor.ProcessTurn(r.Context(), sessionID, rawAudio, lang)
	if err != nil {
		switch {
		case errors.Is(err, turnService.ErrSessionInvalid):
			utils.RespondFailure(w, "Invalid or inactive session")
		case errors.Is(err, transcribe.ErrNoSpeech), turnService.IsConversionFailure(err):
			utils.RespondFailure(w, "Failed to process audio")
		default:
			log.Printf("[turn] session=%s pipeline error: %v", sessionID, err)
			utils.RespondFailure(w, "Failed to process audio")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"userInput": result.UserInput,
		"response":  result.Response,
	})
}
