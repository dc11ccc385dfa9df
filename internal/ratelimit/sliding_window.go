package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

// Redis-backed sliding window: a sorted set of admitted-request
// timestamps per tenant, trimmed to the window on every check.
type SlidingWindowLimiter struct {
	redis  *storage.RedisClient
	limit  int
	window time.Duration
}

func NewSlidingWindowLimiter(redis *storage.RedisClient, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:  redis,
		limit:  limit,
		window: window,
	}
}

func (s *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := windowKey(key)
	now := time.Now()

	windowStart := now.Add(-s.window)

	// Sorted set with timestamps as scores; trimming expired entries
	// is part of every check (lazy expiry).
	pipe := s.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	count := countCmd.Val()

	if count < int64(s.limit) {
		s.redis.ZAdd(ctx, redisKey, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: fmt.Sprintf("%d", now.UnixNano()),
		})
		s.redis.Expire(ctx, redisKey, s.window)
		return true, nil
	}

	return false, nil
}

func (s *SlidingWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	redisKey := windowKey(key)
	now := time.Now()
	windowStart := now.Add(-s.window)

	count, err := s.redis.ZCount(ctx, redisKey,
		fmt.Sprintf("%d", windowStart.UnixNano()),
		fmt.Sprintf("%d", now.UnixNano()))
	if err != nil {
		return 0, err
	}

	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *SlidingWindowLimiter) Limit() int {
	return s.limit
}

func (s *SlidingWindowLimiter) Window() time.Duration {
	return s.window
}

func (s *SlidingWindowLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	redisKey := windowKey(key)

	oldest, err := s.redis.ZRange(ctx, redisKey, 0, 0)
	if err != nil || len(oldest) == 0 {
		return time.Now(), nil
	}

	var oldestNano int64
	fmt.Sscanf(oldest[0], "%d", &oldestNano)

	// The throttle lifts when the oldest entry leaves the window.
	return time.Unix(0, oldestNano).Add(s.window), nil
}

func windowKey(key string) string {
	return fmt.Sprintf("governor:rl:window:%s", key)
}
