package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Per-tenant request admission. Implementations are keyed by tenant
// ID and must lazily expire entries older than the window on every
// check, so memory is self-bounding without a sweep process.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)

	Remaining(ctx context.Context, key string) (int, error)

	Limit() int

	Window() time.Duration

	// Reset returns the time at which the oldest in-window entry
	// expires, i.e. the earliest instant a throttled request can
	// succeed.
	Reset(ctx context.Context, key string) (time.Time, error)
}

// Returned to callers when a request is throttled. RetryAfter is a
// precise backoff hint.
type ThrottledError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit of %d req/s exceeded, retry after %v", e.Limit, e.RetryAfter)
}
