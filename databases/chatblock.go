package databases

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h-like/sleeprism-chat/models"
)

// ChatBlockDatabase contains the methods to use with the chat_blocks table
type ChatBlockDatabase interface {
	Create(ctx context.Context, b *models.ChatBlock) error
	Find(ctx context.Context, blockerID, blockedID uint) (*models.ChatBlock, error)
	Delete(ctx context.Context, id uint) error
	Exists(ctx context.Context, blockerID, blockedID uint) (bool, error)
	ExistsEitherWay(ctx context.Context, a, b uint) (bool, error)
	FindByBlocker(ctx context.Context, blockerID uint) ([]models.ChatBlock, error)
}

type chatBlockDatabase struct {
	db *gorm.DB
}

// NewChatBlockDatabase initializes a new instance of chat block database with the provided db connection
func NewChatBlockDatabase(db *gorm.DB) ChatBlockDatabase {
	return &chatBlockDatabase{db: db}
}

func (c *chatBlockDatabase) Create(ctx context.Context, b *models.ChatBlock) error {
	return translate(c.db.WithContext(ctx).Omit(clause.Associations).Create(b).Error)
}

func (c *chatBlockDatabase) Find(ctx context.Context, blockerID, blockedID uint) (*models.ChatBlock, error) {
	b := &models.ChatBlock{}
	err := c.db.WithContext(ctx).
		Preload("Blocker").
		Preload("Blocked").
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		First(b).Error
	if err != nil {
		return nil, translate(err)
	}
	return b, nil
}

func (c *chatBlockDatabase) Delete(ctx context.Context, id uint) error {
	res := c.db.WithContext(ctx).Delete(&models.ChatBlock{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *chatBlockDatabase) Exists(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).
		Model(&models.ChatBlock{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&n).Error
	return n > 0, translate(err)
}

// ExistsEitherWay checks both (a, b) and (b, a) in one query
func (c *chatBlockDatabase) ExistsEitherWay(ctx context.Context, a, b uint) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).
		Model(&models.ChatBlock{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, translate(err)
}

func (c *chatBlockDatabase) FindByBlocker(ctx context.Context, blockerID uint) ([]models.ChatBlock, error) {
	blocks := []models.ChatBlock{}
	err := c.db.WithContext(ctx).
		Preload("Blocker").
		Preload("Blocked").
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC, id DESC").
		Find(&blocks).Error
	if err != nil {
		return nil, translate(err)
	}
	return blocks, nil
}
