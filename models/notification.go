package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification event types raised by the chat service
const (
	NotificationChatMessage = "CHAT_MESSAGE"
	NotificationChatInvite  = "CHAT_INVITE"
)

// NotificationTargetChatRoom is the target type for chat notifications
const NotificationTargetChatRoom = "ChatRoom"

// NotificationEvent is what the chat core hands to the notification dispatcher
type NotificationEvent struct {
	Type         string    `json:"type" bson:"type"`
	Message      string    `json:"message" bson:"message"`
	ActorID      uint      `json:"actorId" bson:"actorId"`
	TargetType   string    `json:"targetType" bson:"targetType"`
	TargetID     uint      `json:"targetId" bson:"targetId"`
	RedirectPath string    `json:"redirectPath" bson:"redirectPath"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Notification holds the structure for the notifications collection in mongo
type Notification struct {
	ID                primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	UserID            uint               `json:"userId" bson:"userId"`
	NotificationEvent `bson:",inline"`
	IsRead            bool `json:"isRead" bson:"isRead"`
}
