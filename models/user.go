package models

import "time"

// User holds the structure for the users table. Accounts are owned by the wider platform;
// the chat service only reads the id, email and nickname.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Nickname  string    `json:"nickname" gorm:"size:100;not null"`
	CreatedAt time.Time `json:"createdAt"`
}
