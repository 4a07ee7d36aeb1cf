package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondFailure 发送业务失败响应。The frontend keys off the flat
// success flag, so business failures still travel as HTTP 200.
func RespondFailure(w http.ResponseWriter, message string) {
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
