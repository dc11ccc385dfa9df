package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Minute})

	fail := func() error { return errors.New("backend down") }

	for i := 0; i < 3; i++ {
		cb.Call(fail)
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}

	if err := cb.Call(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("open circuit must reject immediately, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Minute})

	fail := func() error { return errors.New("flaky") }
	ok := func() error { return nil }

	cb.Call(fail)
	cb.Call(fail)
	cb.Call(ok)
	cb.Call(fail)
	cb.Call(fail)

	if cb.State() != StateClosed {
		t.Fatalf("intermittent failures must not open the circuit, got %s", cb.State())
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 20 * time.Millisecond, HalfOpenSuccess: 1})

	cb.Call(func() error { return errors.New("down") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(30 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("probe should be let through after timeout: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("successful probe should close the circuit, got %s", cb.State())
	}
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 20 * time.Millisecond})

	cb.Call(func() error { return errors.New("down") })
	time.Sleep(30 * time.Millisecond)

	cb.Call(func() error { return errors.New("still down") })

	if cb.State() != StateOpen {
		t.Fatalf("failed probe should reopen the circuit, got %s", cb.State())
	}
}

func TestReset(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: time.Minute})

	cb.Call(func() error { return errors.New("down") })
	cb.Reset()

	if cb.State() != StateClosed {
		t.Fatalf("expected closed after reset, got %s", cb.State())
	}
}
