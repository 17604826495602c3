package databases

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/h-like/sleeprism-chat/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write hits a unique index
	ErrDuplicate = errors.New("duplicate record")
)

// OpenSQL opens the relational store for the given driver ("sqlite" or "postgres")
func OpenSQL(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite allows one writer; a single connection also keeps ":memory:" databases shared
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates or updates the chat tables
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.ChatRoom{},
		&models.ChatParticipant{},
		&models.ChatMessage{},
		&models.ChatBlock{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate chat tables: %w", err)
	}
	return nil
}

// ChatStore groups the relational databases so a caller can run several writes in one
// transaction. Inside Transaction only the tx store passed to fn may be used.
type ChatStore interface {
	Users() UserDatabase
	Rooms() ChatRoomDatabase
	Participants() ChatParticipantDatabase
	Messages() ChatMessageDatabase
	Blocks() ChatBlockDatabase
	Transaction(ctx context.Context, fn func(tx ChatStore) error) error
}

type chatStore struct {
	db *gorm.DB
}

// NewChatStore wraps an open gorm connection
func NewChatStore(db *gorm.DB) ChatStore {
	return &chatStore{db: db}
}

func (s *chatStore) Users() UserDatabase                   { return &userDatabase{db: s.db} }
func (s *chatStore) Rooms() ChatRoomDatabase               { return &chatRoomDatabase{db: s.db} }
func (s *chatStore) Participants() ChatParticipantDatabase { return &chatParticipantDatabase{db: s.db} }
func (s *chatStore) Messages() ChatMessageDatabase         { return &chatMessageDatabase{db: s.db} }
func (s *chatStore) Blocks() ChatBlockDatabase             { return &chatBlockDatabase{db: s.db} }

func (s *chatStore) Transaction(ctx context.Context, fn func(tx ChatStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&chatStore{db: tx})
	})
}

// translate maps gorm errors onto the package sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
