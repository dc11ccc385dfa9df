package repository

import (
	"context"

	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/storage"
	"gorm.io/gorm"
)

type CalibrationRepository struct {
	db *storage.Postgres
}

func NewCalibrationRepository(db *storage.Postgres) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

func (r *CalibrationRepository) Create(ctx context.Context, record *models.CalibrationRecord) error {
	return r.db.DB.WithContext(ctx).Create(record).Error
}

func (r *CalibrationRepository) FindByPeriod(ctx context.Context, period string) (*models.CalibrationRecord, error) {
	var record models.CalibrationRecord
	err := r.db.DB.WithContext(ctx).
		Where("period = ?", period).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &record, err
}

func (r *CalibrationRepository) List(ctx context.Context) ([]models.CalibrationRecord, error) {
	var records []models.CalibrationRecord
	err := r.db.DB.WithContext(ctx).
		Order("period DESC").
		Find(&records).Error

	return records, err
}
