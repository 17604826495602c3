package models

import "time"

// ChatParticipant holds the structure for the chat_participants table. A (room, user) pair
// has at most one row; leaving and rejoining mutate it.
type ChatParticipant struct {
	ID                uint       `json:"id" gorm:"primaryKey"`
	ChatRoomID        uint       `json:"chatRoomId" gorm:"not null;uniqueIndex:idx_participant_room_user"`
	UserID            uint       `json:"userId" gorm:"not null;uniqueIndex:idx_participant_room_user;index"`
	User              User       `json:"-" gorm:"foreignKey:UserID"`
	JoinedAt          time.Time  `json:"joinedAt" gorm:"not null"`
	LeftAt            *time.Time `json:"leftAt"`
	IsLeft            bool       `json:"isLeft" gorm:"not null"`
	LastReadMessageID *uint      `json:"lastReadMessageId"`
}

// Leave marks the participant as left
func (p *ChatParticipant) Leave(now time.Time) {
	p.IsLeft = true
	p.LeftAt = &now
}

// Rejoin makes a left participant active again with a fresh join time
func (p *ChatParticipant) Rejoin(now time.Time) {
	p.IsLeft = false
	p.LeftAt = nil
	p.JoinedAt = now
}
