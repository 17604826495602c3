package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/api"
	"github.com/h-like/sleeprism-chat/config"
	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

const (
	defaultInboxSize = 20
	maxInboxSize     = 100
)

var errInboxDisabled = errors.New("notification inbox is not configured")

// Notification exported for testing purposes. Both collaborators are nil when mongo is not
// configured.
type Notification struct {
	DB     databases.NotificationDatabase
	Tokens databases.PushTokenDatabase
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// InboxHandler returns the caller's stored notifications, newest first
func (n Notification) InboxHandler(w http.ResponseWriter, r *http.Request) {
	if n.DB == nil {
		config.ErrorStatus("failed to get notifications", http.StatusNotFound, w, errInboxDisabled)
		return
	}
	id, ok := caller(w, r)
	if !ok {
		return
	}
	page, size, err := pageParams(r, defaultInboxSize)
	if err != nil {
		config.ErrorStatus("failed to parse paging", http.StatusBadRequest, w, err)
		return
	}

	notifications, err := n.DB.FindForUser(r.Context(), id.UserID, databases.NewPagination(page, size, defaultInboxSize, maxInboxSize))
	if err != nil {
		config.ErrorStatus("failed to get notifications", http.StatusInternalServerError, w, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	api.WriteJSON(w, http.StatusOK, notifications)
}

// RegisterPushTokenHandler stores an Expo push token for the caller
func (n Notification) RegisterPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	if n.Tokens == nil {
		config.ErrorStatus("failed to register push token", http.StatusNotFound, w, errInboxDisabled)
		return
	}
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req pushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		config.ErrorStatus("failed to register push token", http.StatusBadRequest, w, errors.New("token is required"))
		return
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform != "ios" && platform != "android" {
		config.ErrorStatus("failed to register push token", http.StatusBadRequest, w, errors.New("platform must be ios or android"))
		return
	}

	err := n.Tokens.Upsert(r.Context(), models.PushToken{UserID: id.UserID, Token: req.Token, Platform: platform})
	if err != nil {
		config.ErrorStatus("failed to register push token", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Debugw("registered push token", "userId", id.UserID, "platform", platform)
	w.WriteHeader(http.StatusNoContent)
}
