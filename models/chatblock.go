package models

import "time"

// ChatBlock holds the structure for the chat_blocks table. The pair is ordered: BlockerID
// blocked BlockedID.
type ChatBlock struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	BlockerID uint      `json:"blockerId" gorm:"not null;uniqueIndex:idx_block_pair"`
	Blocker   User      `json:"-" gorm:"foreignKey:BlockerID"`
	BlockedID uint      `json:"blockedId" gorm:"not null;uniqueIndex:idx_block_pair;index"`
	Blocked   User      `json:"-" gorm:"foreignKey:BlockedID"`
	CreatedAt time.Time `json:"createdAt"`
}
