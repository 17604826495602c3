package databases

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h-like/sleeprism-chat/models"
)

// ChatRoomDatabase contains the methods to use with the chat_rooms table
type ChatRoomDatabase interface {
	Create(ctx context.Context, room *models.ChatRoom) error
	FindByID(ctx context.Context, id uint) (*models.ChatRoom, error)
	FindByPairKey(ctx context.Context, pairKey string) (*models.ChatRoom, error)
	UpdateStatus(ctx context.Context, id uint, status models.RoomStatus) error
	FindActiveForUser(ctx context.Context, userID uint) ([]models.ChatRoom, error)
}

type chatRoomDatabase struct {
	db *gorm.DB
}

// NewChatRoomDatabase initializes a new instance of chat room database with the provided db connection
func NewChatRoomDatabase(db *gorm.DB) ChatRoomDatabase {
	return &chatRoomDatabase{db: db}
}

func (c *chatRoomDatabase) Create(ctx context.Context, room *models.ChatRoom) error {
	return translate(c.db.WithContext(ctx).Omit(clause.Associations).Create(room).Error)
}

func (c *chatRoomDatabase) FindByID(ctx context.Context, id uint) (*models.ChatRoom, error) {
	room := &models.ChatRoom{}
	if err := c.db.WithContext(ctx).Preload("Creator").First(room, id).Error; err != nil {
		return nil, translate(err)
	}
	return room, nil
}

func (c *chatRoomDatabase) FindByPairKey(ctx context.Context, pairKey string) (*models.ChatRoom, error) {
	room := &models.ChatRoom{}
	err := c.db.WithContext(ctx).Where("pair_key = ? AND type = ?", pairKey, models.RoomTypeSingle).First(room).Error
	if err != nil {
		return nil, translate(err)
	}
	return room, nil
}

func (c *chatRoomDatabase) UpdateStatus(ctx context.Context, id uint, status models.RoomStatus) error {
	res := c.db.WithContext(ctx).Model(&models.ChatRoom{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindActiveForUser returns non-deleted rooms where the user is an active participant,
// newest first
func (c *chatRoomDatabase) FindActiveForUser(ctx context.Context, userID uint) ([]models.ChatRoom, error) {
	rooms := []models.ChatRoom{}
	err := c.db.WithContext(ctx).
		Preload("Creator").
		Joins("JOIN chat_participants ON chat_participants.chat_room_id = chat_rooms.id").
		Where("chat_participants.user_id = ? AND chat_participants.is_left = ? AND chat_rooms.status = ?",
			userID, false, models.RoomStatusActive).
		Order("chat_rooms.created_at DESC, chat_rooms.id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, translate(err)
	}
	return rooms, nil
}
