package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Returned when a request exceeds its tier timeout, distinguishable
// from generic backend failures so callers can tell "your tier ran
// out of time" apart from an outage.
type Error struct {
	Limit   time.Duration
	Elapsed time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("request exceeded tier timeout of %v (ran %v)", e.Limit, e.Elapsed)
}

// Arms the tier deadline on a request context. The backend's own
// statement timeout (set via the session config) is the preferred
// enforcement; this local deadline is the backstop that cancels the
// in-flight handle when the backend lacks native support.
func Monitor(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	if limit <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limit)
}

// Classifies the outcome of a monitored request. Returns a *Error
// when the deadline fired, nil otherwise.
func Classify(ctx context.Context, limit time.Duration, started time.Time) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Limit: limit, Elapsed: time.Since(started)}
	}
	return nil
}
