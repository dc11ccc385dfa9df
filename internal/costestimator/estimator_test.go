package costestimator

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePlanner struct {
	cost float64
	err  error
}

func (f *fakePlanner) EstimateCost(ctx context.Context, query string) (float64, error) {
	return f.cost, f.err
}

func TestEstimateWithinCeiling(t *testing.T) {
	e := New(&fakePlanner{cost: 9000}, time.Second)

	estimate, err := e.Estimate(context.Background(), "SELECT 1", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if !estimate.Estimated {
		t.Fatal("estimate should be marked as real")
	}
	if estimate.Cost != 9000 {
		t.Fatalf("expected cost 9000, got %f", estimate.Cost)
	}
}

func TestEstimateRejectsAboveCeiling(t *testing.T) {
	e := New(&fakePlanner{cost: 15000}, time.Second)

	_, err := e.Estimate(context.Background(), "SELECT big", 10000)

	var ceilingErr *CeilingError
	if !errors.As(err, &ceilingErr) {
		t.Fatalf("expected *CeilingError, got %v", err)
	}
	if ceilingErr.Estimate != 15000 || ceilingErr.Ceiling != 10000 {
		t.Fatalf("unexpected error values: %+v", ceilingErr)
	}
}

func TestEstimateAtCeilingAdmits(t *testing.T) {
	e := New(&fakePlanner{cost: 10000}, time.Second)

	if _, err := e.Estimate(context.Background(), "SELECT 1", 10000); err != nil {
		t.Fatalf("cost equal to the ceiling should be admitted: %v", err)
	}
}

func TestEstimateFailsOpen(t *testing.T) {
	e := New(&fakePlanner{err: errors.New("planner down")}, time.Second)

	fallbacks := 0
	e.OnFallback(func() { fallbacks++ })

	estimate, err := e.Estimate(context.Background(), "SELECT 1", 10000)
	if err != nil {
		t.Fatalf("planner failure must not reject the request: %v", err)
	}
	if estimate.Estimated {
		t.Fatal("fail-open estimate should be marked unestimated")
	}
	if estimate.Cost != 0 {
		t.Fatalf("fail-open cost should be 0, got %f", estimate.Cost)
	}
	if fallbacks != 1 {
		t.Fatalf("expected 1 fallback callback, got %d", fallbacks)
	}
}
