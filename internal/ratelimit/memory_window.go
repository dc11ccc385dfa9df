package ratelimit

import (
	"context"
	"sync"
	"time"
)

// In-process sliding window for single-node deployments. Same lazy
// expiry property as the redis implementation: entries older than the
// window are discarded on every check.
type MemoryWindowLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewMemoryWindowLimiter(limit int, window time.Duration) *MemoryWindowLimiter {
	return &MemoryWindowLimiter{
		entries: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (m *MemoryWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	live := m.expire(key, now)

	if len(live) >= m.limit {
		return false, nil
	}

	m.entries[key] = append(live, now)
	return true, nil
}

func (m *MemoryWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.expire(key, m.now())

	remaining := m.limit - len(live)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (m *MemoryWindowLimiter) Limit() int {
	return m.limit
}

func (m *MemoryWindowLimiter) Window() time.Duration {
	return m.window
}

func (m *MemoryWindowLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.expire(key, m.now())
	if len(live) == 0 {
		return m.now(), nil
	}

	return live[0].Add(m.window), nil
}

// Drops entries older than the window and returns the survivors.
// Caller must hold m.mu.
func (m *MemoryWindowLimiter) expire(key string, now time.Time) []time.Time {
	cutoff := now.Add(-m.window)
	live := m.entries[key][:0]

	for _, ts := range m.entries[key] {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	m.entries[key] = live
	return live
}
