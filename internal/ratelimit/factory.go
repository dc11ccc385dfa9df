package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tenantwise/dbgovernor/internal/storage"
)

var (
	memMu       sync.Mutex
	memLimiters = make(map[string]*MemoryWindowLimiter)
)

// Builds a limiter for a tier. The algorithm comes from the tier
// definition; redis may be nil in single-node deployments, falling
// back to the in-memory window.
//
// Limiters hold no per-construction state: redis-backed limiters keep
// their windows in redis, and the memory fallback is shared per
// (limit, window) so per-request construction is safe.
func NewLimiter(redis *storage.RedisClient, algorithm string, limit int, window time.Duration) Limiter {
	if redis == nil {
		return sharedMemoryLimiter(limit, window)
	}

	switch algorithm {
	case "fixed_window":
		return NewFixedWindow(redis, limit, window)
	case "token_bucket":
		return NewTokenBucket(redis, limit, refillRate(limit, window))
	default:
		return NewSlidingWindowLimiter(redis, limit, window)
	}
}

// Tokens per second for a bucket equivalent to limit-per-window.
// Sub-second windows round up to one second so the divisor can never
// be zero; the bucket always refills at least one token per second.
func refillRate(limit int, window time.Duration) int {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}

	rate := limit / secs
	if rate < 1 {
		rate = 1
	}
	return rate
}

func sharedMemoryLimiter(limit int, window time.Duration) *MemoryWindowLimiter {
	key := fmt.Sprintf("%d/%s", limit, window)

	memMu.Lock()
	defer memMu.Unlock()

	limiter, ok := memLimiters[key]
	if !ok {
		limiter = NewMemoryWindowLimiter(limit, window)
		memLimiters[key] = limiter
	}
	return limiter
}

// Deletes all rate-limit state for a tenant. Used by the tier
// transition coordinator so a tenant starts clean under new limits.
func ResetTenant(ctx context.Context, redis *storage.RedisClient, tenantID string) error {
	if redis == nil {
		return nil
	}
	return redis.Del(ctx, resetKeys(tenantID, time.Now())...)
}

// Limiters run one-second windows. For the fixed algorithm the window
// number is part of the key, so clear the active window and the next
// one to cover a reset racing a boundary.
func resetKeys(tenantID string, now time.Time) []string {
	return []string{
		fmt.Sprintf("governor:rl:window:%s", tenantID),
		fmt.Sprintf("governor:rl:bucket:%s", tenantID),
		fixedWindowKey(tenantID, time.Second, now),
		fixedWindowKey(tenantID, time.Second, now.Add(time.Second)),
	}
}
