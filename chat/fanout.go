package chat

import (
	"context"

	"github.com/h-like/sleeprism-chat/models"
)

// Notifier delivers an event to a user. Implementations must not block the caller.
type Notifier interface {
	Dispatch(ctx context.Context, userID uint, ev models.NotificationEvent)
}

// Broadcaster publishes a persisted message to a room's live subscribers
type Broadcaster interface {
	BroadcastMessage(roomID uint, msg models.ChatMessageResponse)
}

// SubscriptionEvictor drops live room subscriptions after membership changes
type SubscriptionEvictor interface {
	EvictUser(roomID, userID uint)
	EvictRoom(roomID uint)
}

type nopFanout struct{}

func (nopFanout) Dispatch(context.Context, uint, models.NotificationEvent) {}
func (nopFanout) BroadcastMessage(uint, models.ChatMessageResponse)        {}
func (nopFanout) EvictUser(uint, uint)                                     {}
func (nopFanout) EvictRoom(uint)                                           {}
