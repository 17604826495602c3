package databases

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h-like/sleeprism-chat/models"
)

// ChatMessageDatabase contains the methods to use with the chat_messages table
type ChatMessageDatabase interface {
	Create(ctx context.Context, m *models.ChatMessage) error
	FindByID(ctx context.Context, id uint) (*models.ChatMessage, error)
	FindPage(ctx context.Context, roomID uint, page Pagination) ([]models.ChatMessage, error)
	FindLatest(ctx context.Context, roomID uint) (*models.ChatMessage, error)
	MarkRead(ctx context.Context, id uint) (bool, error)
}

type chatMessageDatabase struct {
	db *gorm.DB
}

// NewChatMessageDatabase initializes a new instance of chat message database with the provided db connection
func NewChatMessageDatabase(db *gorm.DB) ChatMessageDatabase {
	return &chatMessageDatabase{db: db}
}

func (c *chatMessageDatabase) Create(ctx context.Context, m *models.ChatMessage) error {
	return translate(c.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error)
}

func (c *chatMessageDatabase) FindByID(ctx context.Context, id uint) (*models.ChatMessage, error) {
	m := &models.ChatMessage{}
	if err := c.db.WithContext(ctx).Preload("Sender").First(m, id).Error; err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// FindPage returns one page of the room's messages, newest first
func (c *chatMessageDatabase) FindPage(ctx context.Context, roomID uint, page Pagination) ([]models.ChatMessage, error) {
	messages := []models.ChatMessage{}
	err := c.db.WithContext(ctx).
		Preload("Sender").
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&messages).Error
	if err != nil {
		return nil, translate(err)
	}
	return messages, nil
}

func (c *chatMessageDatabase) FindLatest(ctx context.Context, roomID uint) (*models.ChatMessage, error) {
	m := &models.ChatMessage{}
	err := c.db.WithContext(ctx).
		Preload("Sender").
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		First(m).Error
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// MarkRead sets the read flag once and reports whether it changed
func (c *chatMessageDatabase) MarkRead(ctx context.Context, id uint) (bool, error) {
	res := c.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}
