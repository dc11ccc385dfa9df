package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/repository"
)

// A tenant's aggregate for one period, priced with the period's
// calibrated per-unit rate when calibration has run.
type BilledUsage struct {
	models.UsageAggregate
	Calibrated     bool    `json:"calibrated"`
	CalibratedCost float64 `json:"calibrated_cost"`
}

// Read access to usage aggregates and calibration history for the
// downstream billing consumer.
type UsageService struct {
	usage        *repository.UsageRepository
	calibrations *repository.CalibrationRepository
}

func NewUsageService(usage *repository.UsageRepository, calibrations *repository.CalibrationRepository) *UsageService {
	return &UsageService{
		usage:        usage,
		calibrations: calibrations,
	}
}

// All tenants' usage for a period. When the period is calibrated,
// each aggregate carries its invoice-corrected dollar cost; the
// correction factor applies uniformly across tenants.
func (s *UsageService) GetPeriod(ctx context.Context, period string) ([]BilledUsage, error) {
	aggs, err := s.usage.ListByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	record, err := s.calibrations.FindByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}

	billed := make([]BilledUsage, 0, len(aggs))
	for _, agg := range aggs {
		b := BilledUsage{UsageAggregate: agg}
		if record != nil {
			b.Calibrated = true
			b.CalibratedCost = agg.CostUnits * record.CorrectionFactor
		}
		billed = append(billed, b)
	}

	return billed, nil
}

func (s *UsageService) GetTenant(ctx context.Context, tenantID uuid.UUID, period string) (*BilledUsage, error) {
	agg, err := s.usage.FindByTenantAndPeriod(ctx, tenantID, period)
	if err != nil || agg == nil {
		return nil, err
	}

	b := &BilledUsage{UsageAggregate: *agg}

	record, err := s.calibrations.FindByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	if record != nil {
		b.Calibrated = true
		b.CalibratedCost = agg.CostUnits * record.CorrectionFactor
	}

	return b, nil
}

func (s *UsageService) CurrentPeriod() string {
	return time.Now().UTC().Format("2006-01")
}

func (s *UsageService) ListCalibrations(ctx context.Context) ([]models.CalibrationRecord, error) {
	return s.calibrations.List(ctx)
}
