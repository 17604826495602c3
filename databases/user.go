package databases

import (
	"context"

	"gorm.io/gorm"

	"github.com/h-like/sleeprism-chat/models"
)

// UserDatabase contains the methods to use with the users table
type UserDatabase interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type userDatabase struct {
	db *gorm.DB
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db *gorm.DB) UserDatabase {
	return &userDatabase{db: db}
}

func (u *userDatabase) Create(ctx context.Context, user *models.User) error {
	return translate(u.db.WithContext(ctx).Create(user).Error)
}

func (u *userDatabase) FindByID(ctx context.Context, id uint) (*models.User, error) {
	user := &models.User{}
	if err := u.db.WithContext(ctx).First(user, id).Error; err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (u *userDatabase) FindByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := u.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (u *userDatabase) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	if err := u.db.WithContext(ctx).Where("email = ?", email).First(user).Error; err != nil {
		return nil, translate(err)
	}
	return user, nil
}
