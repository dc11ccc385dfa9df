package repository

import (
	"context"

	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/storage"
	"gorm.io/gorm"
)

type AuthRepository struct {
	db *storage.Postgres
}

func NewAuthRepository(db *storage.Postgres) *AuthRepository {
	return &AuthRepository{db: db}
}

func (r *AuthRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.DB.WithContext(ctx).Create(user).Error
}

func (r *AuthRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &user, err
}
