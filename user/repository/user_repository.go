package repository

import (
	"context"
	"errors"

	"whatsmoney/backend/user/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no user exists with the given id
var ErrNotFound = errors.New("user not found")

type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
