package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/api"
	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/config"
)

// Chat exported for testing purposes
type Chat struct {
	Rooms    *chat.RoomManager
	Messages *chat.MessageService
	Blocks   *chat.BlockService
}

type singleRoomRequest struct {
	OtherUserID uint `json:"otherUserId"`
}

type groupRoomRequest struct {
	Name               string `json:"name"`
	ParticipantUserIDs []uint `json:"participantUserIds"`
}

type participantRequest struct {
	UserID uint `json:"userId"`
}

type blockRequest struct {
	BlockedUserID uint `json:"blockedUserId"`
}

// ListRoomsHandler returns the caller's active rooms, most recently updated first
func (c Chat) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	rooms, err := c.Rooms.ListRoomsForUser(r.Context(), id.UserID)
	if err != nil {
		api.WriteError("failed to list chat rooms", w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rooms)
}

// CreateSingleRoomHandler creates or returns the 1:1 room with another user
func (c Chat) CreateSingleRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req singleRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.OtherUserID == 0 {
		config.ErrorStatus("failed to create single chat room", http.StatusBadRequest, w, fmt.Errorf("otherUserId is required"))
		return
	}

	room, err := c.Rooms.CreateOrGetSingleRoom(r.Context(), id.UserID, req.OtherUserID)
	if err != nil {
		api.WriteError("failed to create single chat room", w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, room)
}

// CreateGroupRoomHandler creates a group room owned by the caller
func (c Chat) CreateGroupRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req groupRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	room, err := c.Rooms.CreateGroupRoom(r.Context(), id.UserID, req.Name, req.ParticipantUserIDs)
	if err != nil {
		api.WriteError("failed to create group chat room", w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, room)
}

// RoomDetailsHandler returns one room the caller is an active member of
func (c Chat) RoomDetailsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "roomId")
	if !ok {
		return
	}
	room, err := c.Rooms.GetRoomDetails(r.Context(), roomID, id.UserID)
	if err != nil {
		api.WriteError("failed to get chat room", w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, room)
}

// DeleteRoomHandler soft-deletes a room
func (c Chat) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "roomId")
	if !ok {
		return
	}
	if err := c.Rooms.Delete(r.Context(), roomID, id.UserID); err != nil {
		api.WriteError("failed to delete chat room", w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LeaveRoomHandler marks the caller as having left a room
func (c Chat) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "roomId")
	if !ok {
		return
	}
	if err := c.Rooms.Leave(r.Context(), roomID, id.UserID); err != nil {
		api.WriteError("failed to leave chat room", w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddParticipantHandler invites a user into a group room
func (c Chat) AddParticipantHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "roomId")
	if !ok {
		return
	}
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.UserID == 0 {
		config.ErrorStatus("failed to add participant", http.StatusBadRequest, w, fmt.Errorf("userId is required"))
		return
	}

	p, err := c.Rooms.AddParticipant(r.Context(), roomID, id.UserID, req.UserID)
	if err != nil {
		api.WriteError("failed to add participant", w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, p)
}

// RemoveParticipantHandler removes a member from a group room. Only the creator may do this.
func (c Chat) RemoveParticipantHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "roomId")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	if err := c.Rooms.RemoveParticipant(r.Context(), roomID, id.UserID, userID); err != nil {
		api.WriteError("failed to remove participant", w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HistoryHandler returns a page of messages, newest first
func (c Chat) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "roomId")
	if !ok {
		return
	}
	page, size, err := pageParams(r, chat.DefaultHistorySize)
	if err != nil {
		config.ErrorStatus("failed to parse paging", http.StatusBadRequest, w, err)
		return
	}

	messages, err := c.Messages.GetHistory(r.Context(), roomID, id.UserID, page, size)
	if err != nil {
		api.WriteError("failed to get chat history", w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, messages)
}

// MarkReadHandler marks one message as read by the caller
func (c Chat) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "messageId")
	if !ok {
		return
	}
	msg, err := c.Messages.MarkRead(r.Context(), messageID, id.UserID)
	if err != nil {
		api.WriteError("failed to mark message read", w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, msg)
}

// BlockHandler blocks another user
func (c Chat) BlockHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.BlockedUserID == 0 {
		config.ErrorStatus("failed to block user", http.StatusBadRequest, w, fmt.Errorf("blockedUserId is required"))
		return
	}

	block, err := c.Blocks.Block(r.Context(), id.UserID, req.BlockedUserID)
	if err != nil {
		api.WriteError("failed to block user", w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, block)
}

// UnblockHandler removes a block the caller created
func (c Chat) UnblockHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	blockedID, ok := pathID(w, r, "blockedUserId")
	if !ok {
		return
	}
	if err := c.Blocks.Unblock(r.Context(), id.UserID, blockedID); err != nil {
		api.WriteError("failed to unblock user", w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBlockedHandler returns the users the caller has blocked
func (c Chat) ListBlockedHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	blocks, err := c.Blocks.ListBlocked(r.Context(), id.UserID)
	if err != nil {
		api.WriteError("failed to list blocked users", w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, blocks)
}

// caller reads the identity the authenticator put on the request
func caller(w http.ResponseWriter, r *http.Request) (chat.Identity, bool) {
	id, ok := chat.IdentityFrom(r.Context())
	if !ok {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, chat.ErrUnauthenticated)
		return chat.Identity{}, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		zap.S().Debugw("invalid path id", "name", name, "value", raw)
		config.ErrorStatus(fmt.Sprintf("invalid %s", name), http.StatusBadRequest, w, fmt.Errorf("%q is not an id", raw))
		return 0, false
	}
	return uint(id), true
}

// pageParams parses the 0-based page and the page size. Missing values fall back to
// page 0 and defaultSize; clamping happens in the store.
func pageParams(r *http.Request, defaultSize int) (int, int, error) {
	page, size := 0, defaultSize
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 {
			return 0, 0, fmt.Errorf("page must be a non-negative integer, got %q", v)
		}
		page = p
	}
	if v := q.Get("size"); v != "" {
		s, err := strconv.Atoi(v)
		if err != nil || s <= 0 {
			return 0, 0, fmt.Errorf("size must be a positive integer, got %q", v)
		}
		size = s
	}
	return page, size, nil
}
