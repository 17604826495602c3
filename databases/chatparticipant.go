package databases

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h-like/sleeprism-chat/models"
)

// ChatParticipantDatabase contains the methods to use with the chat_participants table
type ChatParticipantDatabase interface {
	Create(ctx context.Context, p *models.ChatParticipant) error
	Find(ctx context.Context, roomID, userID uint) (*models.ChatParticipant, error)
	FindForUpdate(ctx context.Context, roomID, userID uint) (*models.ChatParticipant, error)
	FindByRoom(ctx context.Context, roomID uint) ([]models.ChatParticipant, error)
	Save(ctx context.Context, p *models.ChatParticipant) error
	CountActive(ctx context.Context, roomID uint) (int64, error)
	AdvanceLastRead(ctx context.Context, roomID, userID, messageID uint) (bool, error)
}

type chatParticipantDatabase struct {
	db *gorm.DB
}

// NewChatParticipantDatabase initializes a new instance of chat participant database with the provided db connection
func NewChatParticipantDatabase(db *gorm.DB) ChatParticipantDatabase {
	return &chatParticipantDatabase{db: db}
}

func (c *chatParticipantDatabase) Create(ctx context.Context, p *models.ChatParticipant) error {
	return translate(c.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error)
}

func (c *chatParticipantDatabase) Find(ctx context.Context, roomID, userID uint) (*models.ChatParticipant, error) {
	p := &models.ChatParticipant{}
	err := c.db.WithContext(ctx).
		Preload("User").
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		First(p).Error
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// FindForUpdate reads one participant row under a row lock. Used inside a transaction it
// serialises against a concurrent leave or removal of the same member; sqlite ignores the
// clause and relies on its single writer.
func (c *chatParticipantDatabase) FindForUpdate(ctx context.Context, roomID, userID uint) (*models.ChatParticipant, error) {
	p := &models.ChatParticipant{}
	err := c.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		First(p).Error
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// FindByRoom returns every participant row of the room, left ones included
func (c *chatParticipantDatabase) FindByRoom(ctx context.Context, roomID uint) ([]models.ChatParticipant, error) {
	participants := []models.ChatParticipant{}
	err := c.db.WithContext(ctx).
		Preload("User").
		Where("chat_room_id = ?", roomID).
		Order("id").
		Find(&participants).Error
	if err != nil {
		return nil, translate(err)
	}
	return participants, nil
}

func (c *chatParticipantDatabase) Save(ctx context.Context, p *models.ChatParticipant) error {
	return translate(c.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error)
}

func (c *chatParticipantDatabase) CountActive(ctx context.Context, roomID uint) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_room_id = ? AND is_left = ?", roomID, false).
		Count(&n).Error
	return n, translate(err)
}

// AdvanceLastRead moves the read marker forward to messageID. It never moves it backwards
// and reports whether the row changed.
func (c *chatParticipantDatabase) AdvanceLastRead(ctx context.Context, roomID, userID, messageID uint) (bool, error) {
	res := c.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_room_id = ? AND user_id = ? AND (last_read_message_id IS NULL OR last_read_message_id < ?)",
			roomID, userID, messageID).
		Update("last_read_message_id", messageID)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}
