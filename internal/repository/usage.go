package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/storage"
	"github.com/tenantwise/dbgovernor/internal/usage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsageRepository struct {
	db *storage.Postgres
}

func NewUsageRepository(db *storage.Postgres) *UsageRepository {
	return &UsageRepository{db: db}
}

// Applies one batch delta as monotonic increments, creating the
// (tenant, period) row on first write. Peak concurrency is max-merged
// rather than summed.
func (r *UsageRepository) Apply(ctx context.Context, delta usage.AggregateDelta) error {
	now := time.Now().UTC()

	row := models.UsageAggregate{
		TenantID:        delta.TenantID,
		Period:          delta.Period,
		RequestCount:    delta.Requests,
		CostUnits:       delta.CostUnits,
		MemoryUnitMBs:   delta.MemoryUnitMBs,
		PeakConcurrency: delta.PeakConcurrency,
		ErrorCount:      delta.Errors,
		TimeoutCount:    delta.Timeouts,
		UpdatedAt:       now,
	}

	return r.db.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":    gorm.Expr("usage_aggregates.request_count + ?", delta.Requests),
			"cost_units":       gorm.Expr("usage_aggregates.cost_units + ?", delta.CostUnits),
			"memory_unit_mbs":  gorm.Expr("usage_aggregates.memory_unit_mbs + ?", delta.MemoryUnitMBs),
			"peak_concurrency": gorm.Expr("GREATEST(usage_aggregates.peak_concurrency, ?)", delta.PeakConcurrency),
			"error_count":      gorm.Expr("usage_aggregates.error_count + ?", delta.Errors),
			"timeout_count":    gorm.Expr("usage_aggregates.timeout_count + ?", delta.Timeouts),
			"updated_at":       now,
		}),
	}).Create(&row).Error
}

func (r *UsageRepository) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period string) (*models.UsageAggregate, error) {
	var agg models.UsageAggregate
	err := r.db.DB.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, period).
		First(&agg).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &agg, err
}

func (r *UsageRepository) ListByPeriod(ctx context.Context, period string) ([]models.UsageAggregate, error) {
	var aggs []models.UsageAggregate
	err := r.db.DB.WithContext(ctx).
		Where("period = ?", period).
		Order("cost_units DESC").
		Find(&aggs).Error

	return aggs, err
}

// Total estimated cost units across all tenants for a period, the
// denominator of the calibration correction factor.
func (r *UsageRepository) SumCostUnits(ctx context.Context, period string) (float64, error) {
	var sum float64
	err := r.db.DB.WithContext(ctx).
		Model(&models.UsageAggregate{}).
		Where("period = ?", period).
		Select("COALESCE(SUM(cost_units), 0)").
		Scan(&sum).Error

	return sum, err
}

func (r *UsageRepository) ListPeriods(ctx context.Context) ([]string, error) {
	var periods []string
	err := r.db.DB.WithContext(ctx).
		Model(&models.UsageAggregate{}).
		Distinct("period").
		Order("period DESC").
		Pluck("period", &periods).Error

	return periods, err
}
