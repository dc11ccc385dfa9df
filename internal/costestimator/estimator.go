package costestimator

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Returned when a request's estimated cost exceeds the tier ceiling.
type CeilingError struct {
	Estimate float64
	Ceiling  float64
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("estimated cost %.0f exceeds tier ceiling %.0f", e.Estimate, e.Ceiling)
}

// Ephemeral, per-request cost signal. Estimated is false when the
// planner was unavailable and the request was admitted fail-open.
type CostEstimate struct {
	Cost      float64
	Estimated bool
}

// Soft-but-enforced admission gate: estimates can be stale or wrong,
// so the timeout enforcer remains the hard backstop for anything that
// slips through.
type Estimator struct {
	planner Planner
	timeout time.Duration

	onFallback func() // optional hook, counts planner coverage gaps
}

func New(planner Planner, timeout time.Duration) *Estimator {
	return &Estimator{
		planner: planner,
		timeout: timeout,
	}
}

// Registers a callback invoked whenever estimation fails open.
func (e *Estimator) OnFallback(fn func()) {
	e.onFallback = fn
}

// Obtains a pre-execution cost estimate and rejects the request when
// it exceeds the ceiling. Fails open when the planner itself errors:
// a broken estimator must not block all traffic.
func (e *Estimator) Estimate(ctx context.Context, query string, ceiling float64) (*CostEstimate, error) {
	plannerCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cost, err := e.planner.EstimateCost(plannerCtx, query)
	if err != nil {
		log.Printf("Cost estimation unavailable, admitting fail-open: %v", err)
		if e.onFallback != nil {
			e.onFallback()
		}
		return &CostEstimate{Cost: 0, Estimated: false}, nil
	}

	if cost > ceiling {
		return nil, &CeilingError{Estimate: cost, Ceiling: ceiling}
	}

	return &CostEstimate{Cost: cost, Estimated: true}, nil
}
