package models

import "time"

// RoomType distinguishes one-to-one rooms from named group rooms
type RoomType string

// RoomStatus is the soft-delete state of a room
type RoomStatus string

const (
	// RoomTypeSingle is a two person room with no stored name
	RoomTypeSingle RoomType = "SINGLE"
	// RoomTypeGroup is a named room owned by its creator
	RoomTypeGroup RoomType = "GROUP"

	// RoomStatusActive rooms accept messages and show up in room lists
	RoomStatusActive RoomStatus = "ACTIVE"
	// RoomStatusDeleted rooms are soft-deleted
	RoomStatusDeleted RoomStatus = "DELETED"
)

// ChatRoom holds the structure for the chat_rooms table
type ChatRoom struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Name      *string    `json:"name" gorm:"size:100"`
	Type      RoomType   `json:"type" gorm:"size:10;not null"`
	CreatorID *uint      `json:"creatorId"`
	Creator   *User      `json:"-" gorm:"foreignKey:CreatorID"`
	Status    RoomStatus `json:"status" gorm:"size:10;not null;index"`
	// PairKey is "<minUserId>:<maxUserId>" for SINGLE rooms and NULL for groups. The unique
	// index stops two processes from creating the same single room.
	PairKey   *string   `json:"-" gorm:"size:64;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Participants []ChatParticipant `json:"-" gorm:"foreignKey:ChatRoomID;constraint:OnDelete:CASCADE"`
	Messages     []ChatMessage     `json:"-" gorm:"foreignKey:ChatRoomID;constraint:OnDelete:CASCADE"`
}

// IsDeleted reports whether the room has been soft-deleted
func (r *ChatRoom) IsDeleted() bool {
	return r.Status == RoomStatusDeleted
}

// SoftDelete moves the room from ACTIVE to DELETED and reports whether the status changed
func (r *ChatRoom) SoftDelete() bool {
	if r.Status == RoomStatusDeleted {
		return false
	}
	r.Status = RoomStatusDeleted
	return true
}

// Reactivate is the one exception to DELETED being terminal: a single room is brought back
// when the same pair of users opens it again.
func (r *ChatRoom) Reactivate() bool {
	if r.Status == RoomStatusActive {
		return false
	}
	r.Status = RoomStatusActive
	return true
}

// IsCreator reports whether userID created this room
func (r *ChatRoom) IsCreator(userID uint) bool {
	return r.CreatorID != nil && *r.CreatorID == userID
}
