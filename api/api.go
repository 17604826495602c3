package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/config"
	"github.com/h-like/sleeprism-chat/models"
)

// StatusFor maps a chat error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, chat.ErrUnauthenticated):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// WriteError writes a classified chat error. Unclassified errors are logged in full and the
// client only sees a generic message.
func WriteError(message string, w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		zap.S().Errorw(message, "error", err)
		config.ErrorStatus(message, status, w, errors.New(chat.Reason(err)))
		return
	}
	config.ErrorStatus(message, status, w, err)
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// HealthCheckHandler reports liveness
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, models.HealthCheckResponse{Alive: true})
}
