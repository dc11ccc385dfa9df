package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tenantwise/dbgovernor/internal/models"
)

// ErrAlreadyCalibrated is returned when a period already has an
// immutable calibration record.
var ErrAlreadyCalibrated = errors.New("period already calibrated")

// ErrNoUsage is returned when a period has no recorded cost units to
// attribute the invoice against.
var ErrNoUsage = errors.New("no recorded usage for period")

// Aggregated usage reads needed for calibration.
type UsageSource interface {
	SumCostUnits(ctx context.Context, period string) (float64, error)
	ListPeriods(ctx context.Context) ([]string, error)
}

// Durable calibration history.
type RecordStore interface {
	Create(ctx context.Context, record *models.CalibrationRecord) error
	FindByPeriod(ctx context.Context, period string) (*models.CalibrationRecord, error)
}

// Reconciles a period's internally estimated usage against the real
// infrastructure invoice, deriving the corrected per-unit rate every
// per-tenant aggregate is priced with.
type Calibrator struct {
	usage   UsageSource
	records RecordStore
}

func NewCalibrator(usage UsageSource, records RecordStore) *Calibrator {
	return &Calibrator{usage: usage, records: records}
}

// Closes a billing period against its external invoice total. The
// correction factor applies uniformly across tenants:
//
//	correctionFactor = externalTotal / sum(estimatedCostAcrossTenants)
func (c *Calibrator) Close(ctx context.Context, period string, externalTotal float64) (*models.CalibrationRecord, error) {
	if externalTotal < 0 {
		return nil, fmt.Errorf("invalid external total %.2f", externalTotal)
	}

	existing, err := c.records.FindByPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyCalibrated
	}

	estimated, err := c.usage.SumCostUnits(ctx, period)
	if err != nil {
		return nil, err
	}
	if estimated <= 0 {
		return nil, ErrNoUsage
	}

	record := &models.CalibrationRecord{
		Period:           period,
		ExternalTotal:    externalTotal,
		EstimatedTotal:   estimated,
		CorrectionFactor: externalTotal / estimated,
		Variance:         variance(externalTotal, estimated),
		CreatedAt:        time.Now().UTC(),
	}

	if err := c.records.Create(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Periods with recorded usage but no calibration yet, oldest first.
// The current period is excluded since its invoice cannot exist yet.
func (c *Calibrator) UncalibratedPeriods(ctx context.Context, now time.Time) ([]string, error) {
	periods, err := c.usage.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}

	current := now.UTC().Format("2006-01")

	var missing []string
	for i := len(periods) - 1; i >= 0; i-- {
		period := periods[i]
		if period >= current {
			continue
		}

		record, err := c.records.FindByPeriod(ctx, period)
		if err != nil {
			return nil, err
		}
		if record == nil {
			missing = append(missing, period)
		}
	}

	return missing, nil
}

// Relative estimation error for the period, assuming the nominal
// one-dollar-per-unit rate the formulas target. A variance of 0.25
// means the internal estimate undershot the invoice by 25%.
func variance(external, estimated float64) float64 {
	if external == 0 {
		return 0
	}
	return (external - estimated) / external
}
