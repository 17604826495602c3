package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

// activeRoom loads a room that has not been soft-deleted
func activeRoom(ctx context.Context, store databases.ChatStore, roomID uint) (*models.ChatRoom, error) {
	room, err := store.Rooms().FindByID(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "chat room", roomID)
	}
	if room.IsDeleted() {
		return nil, fmt.Errorf("%w: chat room %d is deleted", ErrNotFound, roomID)
	}
	return room, nil
}

// activeParticipant loads the caller's membership and fails with ErrPermission unless it
// is active
func activeParticipant(ctx context.Context, store databases.ChatStore, roomID, userID uint) (*models.ChatParticipant, error) {
	p, err := store.Participants().Find(ctx, roomID, userID)
	if errors.Is(err, databases.ErrNotFound) || (err == nil && p.IsLeft) {
		return nil, fmt.Errorf("%w: user %d is not an active participant of chat room %d", ErrPermission, userID, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load participant %d of chat room %d: %w", userID, roomID, err)
	}
	return p, nil
}

// requireActiveMember is the membership gate shared by the room, message and frame paths
func requireActiveMember(ctx context.Context, store databases.ChatStore, roomID, userID uint) (*models.ChatRoom, *models.ChatParticipant, error) {
	room, err := activeRoom(ctx, store, roomID)
	if err != nil {
		return nil, nil, err
	}
	p, err := activeParticipant(ctx, store, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	return room, p, nil
}

// buildRoomResponse loads the participants and latest message of room
func buildRoomResponse(ctx context.Context, store databases.ChatStore, room *models.ChatRoom) (models.ChatRoomResponse, error) {
	participants, err := store.Participants().FindByRoom(ctx, room.ID)
	if err != nil {
		return models.ChatRoomResponse{}, fmt.Errorf("failed to load participants of chat room %d: %w", room.ID, err)
	}
	last, err := store.Messages().FindLatest(ctx, room.ID)
	if errors.Is(err, databases.ErrNotFound) {
		last = nil
	} else if err != nil {
		return models.ChatRoomResponse{}, fmt.Errorf("failed to load latest message of chat room %d: %w", room.ID, err)
	}
	return models.NewChatRoomResponse(*room, participants, last), nil
}
