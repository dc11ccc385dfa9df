package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

// Redis-backed leaky bucket equivalent: tokens refill continuously at
// the tier's request rate, each admitted request consumes one.
type TokenBucket struct {
	redis      *storage.RedisClient
	capacity   int
	refillRate int // tokens per second
}

type bucketState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

func NewTokenBucket(redis *storage.RedisClient, capacity int, refillRate int) *TokenBucket {
	return &TokenBucket{
		redis:      redis,
		capacity:   capacity,
		refillRate: refillRate,
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := bucketKey(key)

	data, err := t.redis.Get(ctx, redisKey)
	var state bucketState

	if err == redis.Nil {
		// First request, bucket starts full
		state = bucketState{
			Tokens:     float64(t.capacity),
			LastRefill: time.Now(),
		}
	} else if err != nil {
		return false, err
	} else {
		json.Unmarshal([]byte(data), &state)
	}

	// Refill based on elapsed time
	now := time.Now()
	elapsed := now.Sub(state.LastRefill)
	state.Tokens = math.Min(state.Tokens+elapsed.Seconds()*float64(t.refillRate), float64(t.capacity))
	state.LastRefill = now

	allowed := state.Tokens >= 1
	if allowed {
		state.Tokens -= 1
	}

	stateJSON, _ := json.Marshal(state)
	t.redis.Set(ctx, redisKey, stateJSON, time.Hour)

	return allowed, nil
}

func (t *TokenBucket) Remaining(ctx context.Context, key string) (int, error) {
	redisKey := bucketKey(key)

	data, err := t.redis.Get(ctx, redisKey)
	if err == redis.Nil {
		return t.capacity, nil
	}
	if err != nil {
		return 0, err
	}

	var state bucketState
	json.Unmarshal([]byte(data), &state)

	elapsed := time.Since(state.LastRefill)
	current := math.Min(state.Tokens+elapsed.Seconds()*float64(t.refillRate), float64(t.capacity))

	return int(current), nil
}

func (t *TokenBucket) Limit() int {
	return t.capacity
}

func (t *TokenBucket) Window() time.Duration {
	// Time to fully refill an empty bucket
	return time.Duration(t.capacity/t.refillRate) * time.Second
}

func (t *TokenBucket) Reset(ctx context.Context, key string) (time.Time, error) {
	redisKey := bucketKey(key)

	data, err := t.redis.Get(ctx, redisKey)
	if err == redis.Nil {
		return time.Now(), nil
	}
	if err != nil {
		return time.Time{}, err
	}

	var state bucketState
	json.Unmarshal([]byte(data), &state)

	// Time until one token is available
	if state.Tokens >= 1 {
		return time.Now(), nil
	}
	secondsToToken := (1 - state.Tokens) / float64(t.refillRate)

	return time.Now().Add(time.Duration(secondsToToken * float64(time.Second))), nil
}

func bucketKey(key string) string {
	return fmt.Sprintf("governor:rl:bucket:%s", key)
}
