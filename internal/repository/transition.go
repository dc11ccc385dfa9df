package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

type TransitionRepository struct {
	db *storage.Postgres
}

func NewTransitionRepository(db *storage.Postgres) *TransitionRepository {
	return &TransitionRepository{db: db}
}

func (r *TransitionRepository) Create(ctx context.Context, record *models.TransitionRecord) error {
	return r.db.DB.WithContext(ctx).Create(record).Error
}

func (r *TransitionRepository) Update(ctx context.Context, record *models.TransitionRecord) error {
	return r.db.DB.WithContext(ctx).Save(record).Error
}

func (r *TransitionRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.TransitionRecord, error) {
	var records []models.TransitionRecord
	err := r.db.DB.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error

	return records, err
}

func (r *TransitionRepository) List(ctx context.Context, limit int) ([]models.TransitionRecord, error) {
	var records []models.TransitionRecord
	err := r.db.DB.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error

	return records, err
}

// Inconsistent records are never pruned: they flag tenants needing
// operator intervention.
func (r *TransitionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("started_at < ? AND state <> ?", cutoff, models.TransitionInconsistent).
		Delete(&models.TransitionRecord{})

	return result.RowsAffected, result.Error
}
