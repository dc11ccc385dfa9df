package repository

import (
	"context"

	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/storage"
	"gorm.io/gorm"
)

type TierRepository struct {
	db *storage.Postgres
}

func NewTierRepository(db *storage.Postgres) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) FindByName(ctx context.Context, name string) (*models.TierDefinition, error) {
	var tier models.TierDefinition
	err := r.db.DB.WithContext(ctx).
		Where("name = ?", name).
		First(&tier).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &tier, err
}

func (r *TierRepository) List(ctx context.Context) ([]models.TierDefinition, error) {
	var tiers []models.TierDefinition
	err := r.db.DB.WithContext(ctx).
		Order("cost_ceiling ASC").
		Find(&tiers).Error

	return tiers, err
}

// Populates the catalog on first startup. Existing definitions are
// never overwritten; catalog changes ship as explicit migrations.
func (r *TierRepository) Seed(ctx context.Context, tiers []models.TierDefinition) error {
	var count int64
	if err := r.db.DB.WithContext(ctx).Model(&models.TierDefinition{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&tiers).Error
}
