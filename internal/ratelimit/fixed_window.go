package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

// Counter per wall-clock window. Cheapest of the algorithms (one INCR
// per request) but allows bursts of up to 2x the limit across a window
// boundary, so it is only offered for tiers where that is acceptable.
type FixedWindowLimiter struct {
	redis  *storage.RedisClient
	limit  int
	window time.Duration
}

func NewFixedWindow(redis *storage.RedisClient, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		redis:  redis,
		limit:  limit,
		window: window,
	}
}

func (f *FixedWindowLimiter) key(tenantKey string) string {
	return fixedWindowKey(tenantKey, f.window, time.Now())
}

// Key for the wall-clock window containing at. Shared with ResetTenant
// so a transition clears the same key the limiter counts in.
func fixedWindowKey(tenantKey string, window time.Duration, at time.Time) string {
	secs := int64(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("governor:rl:fixed:%s:%d", tenantKey, at.Unix()/secs)
}

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := f.key(key)

	count, err := f.redis.Incr(ctx, redisKey)
	if err != nil {
		return false, err
	}

	if count == 1 {
		f.redis.Expire(ctx, redisKey, f.window)
	}

	return count <= int64(f.limit), nil
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	val, err := f.redis.Get(ctx, f.key(key))
	if err == redis.Nil {
		return f.limit, nil
	}
	if err != nil {
		return 0, err
	}

	count, _ := strconv.Atoi(val)
	remaining := f.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (f *FixedWindowLimiter) Limit() int {
	return f.limit
}

func (f *FixedWindowLimiter) Window() time.Duration {
	return f.window
}

// The window boundary: fixed windows reset all at once.
func (f *FixedWindowLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	secs := int64(f.window.Seconds())
	if secs < 1 {
		secs = 1
	}
	currentWindow := time.Now().Unix() / secs
	nextWindow := (currentWindow + 1) * secs
	return time.Unix(nextWindow, 0), nil
}
