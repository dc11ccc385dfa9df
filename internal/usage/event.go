package usage

import (
	"time"

	"github.com/google/uuid"
)

// Request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// One completed request's resource estimate. Immutable once created;
// queued for batching into per-tenant, per-period aggregates.
type Event struct {
	TenantID      uuid.UUID
	Timestamp     time.Time
	Duration      time.Duration
	EstimatedCost float64
	CostEstimated bool // false when the planner was unavailable
	MemoryMB      int  // session working-memory ceiling in effect
	Parallelism   int  // session parallelism ceiling in effect
	Outcome       string
}

// Billing period key for a timestamp, e.g. "2026-08".
func Period(ts time.Time) string {
	return ts.UTC().Format("2006-01")
}
