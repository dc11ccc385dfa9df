package models

import (
	"time"

	"github.com/google/uuid"
)

// Per-tenant, per-billing-period running totals. Mutated only via
// monotonic increments from the usage batching pipeline.
type UsageAggregate struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TenantID        uuid.UUID `gorm:"type:uuid;index:idx_usage_tenant_period,unique" json:"tenant_id"`
	Period          string    `gorm:"index:idx_usage_tenant_period,unique;not null" json:"period"` // "2026-08"
	RequestCount    int64     `json:"request_count"`
	CostUnits       float64   `json:"cost_units"`
	MemoryUnitMBs   float64   `gorm:"column:memory_unit_mbs" json:"memory_unit_mbs"`
	PeakConcurrency int       `json:"peak_concurrency"`
	ErrorCount      int64     `json:"error_count"`
	TimeoutCount    int64     `json:"timeout_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (UsageAggregate) TableName() string {
	return "usage_aggregates"
}
