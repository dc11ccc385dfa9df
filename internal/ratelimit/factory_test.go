package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestRefillRateNeverDividesByZero(t *testing.T) {
	cases := []struct {
		limit  int
		window time.Duration
		want   int
	}{
		{10, time.Second, 10},
		{10, 2 * time.Second, 5},
		{1, 5 * time.Second, 1},
		{10, 500 * time.Millisecond, 10},
		{10, 0, 10},
	}

	for _, tc := range cases {
		if got := refillRate(tc.limit, tc.window); got != tc.want {
			t.Fatalf("refillRate(%d, %v) = %d, want %d", tc.limit, tc.window, got, tc.want)
		}
	}
}

func TestFixedWindowKeyDerivation(t *testing.T) {
	at := time.Unix(1766000000, 123)

	key := fixedWindowKey("tenant-a", time.Second, at)
	if key != "governor:rl:fixed:tenant-a:1766000000" {
		t.Fatalf("unexpected fixed window key: %s", key)
	}

	// Sub-second windows collapse to one second rather than dividing by zero
	if got := fixedWindowKey("tenant-a", 100*time.Millisecond, at); got != key {
		t.Fatalf("sub-second window produced %s, want %s", got, key)
	}
}

func TestResetKeysCoverFixedWindows(t *testing.T) {
	now := time.Unix(1766000000, 0)
	keys := resetKeys("tenant-a", now)

	want := map[string]bool{
		"governor:rl:window:tenant-a":           false,
		"governor:rl:bucket:tenant-a":           false,
		"governor:rl:fixed:tenant-a:1766000000": false,
		"governor:rl:fixed:tenant-a:1766000001": false,
	}
	for _, key := range keys {
		if _, ok := want[key]; !ok {
			t.Fatalf("unexpected reset key: %s", key)
		}
		want[key] = true
	}
	for key, seen := range want {
		if !seen {
			t.Fatalf("reset misses key %s", key)
		}
	}

	// The fixed limiter must count in a key the reset clears
	limiter := NewFixedWindow(nil, 5, time.Second)
	current := fixedWindowKey("tenant-a", limiter.Window(), now)
	if !want[current] {
		t.Fatalf("limiter key %s not covered by reset", current)
	}
}

func TestResetTenantWithoutRedis(t *testing.T) {
	if err := ResetTenant(context.Background(), nil, "tenant-a"); err != nil {
		t.Fatalf("reset without redis must be a no-op, got %v", err)
	}
}
