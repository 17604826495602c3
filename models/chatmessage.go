package models

import (
	"fmt"
	"time"
)

// MessageType is the kind of content a message carries
type MessageType string

const (
	// MessageTypeText is a plain text message
	MessageTypeText MessageType = "TEXT"
	// MessageTypeImage is a message whose content is an image URL
	MessageTypeImage MessageType = "IMAGE"
)

// ParseMessageType defaults an empty type to TEXT and rejects unknown types
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case "":
		return MessageTypeText, nil
	case MessageTypeText, MessageTypeImage:
		return MessageType(s), nil
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

// ChatMessage holds the structure for the chat_messages table. Only IsRead changes after
// creation.
type ChatMessage struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	ChatRoomID  uint        `json:"chatRoomId" gorm:"not null;index:idx_message_room_created,priority:1"`
	SenderID    uint        `json:"senderId" gorm:"not null"`
	Sender      User        `json:"-" gorm:"foreignKey:SenderID"`
	Content     string      `json:"content" gorm:"type:text;not null"`
	MessageType MessageType `json:"messageType" gorm:"size:10;not null"`
	IsRead      bool        `json:"isRead" gorm:"not null"`
	CreatedAt   time.Time   `json:"createdAt" gorm:"index:idx_message_room_created,priority:2"`
}
