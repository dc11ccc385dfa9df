package loadbalancer

import "testing"

func TestRoundRobinCycles(t *testing.T) {
	rr := NewRoundRobin()
	endpoints := []string{"a", "b", "c"}

	got := []string{
		rr.Next(endpoints),
		rr.Next(endpoints),
		rr.Next(endpoints),
		rr.Next(endpoints),
	}

	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pick %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	rr := NewRoundRobin()
	if got := rr.Next(nil); got != "" {
		t.Fatalf("expected empty pick, got %s", got)
	}
}

func TestLeastConnectionsPrefersIdle(t *testing.T) {
	lc := NewLeastConnections()
	endpoints := []string{"a", "b"}

	lc.Increment("a")
	lc.Increment("a")
	lc.Increment("b")

	if got := lc.Next(endpoints); got != "b" {
		t.Fatalf("expected b with fewer connections, got %s", got)
	}

	lc.Decrement("a")
	lc.Decrement("a")

	if got := lc.Next(endpoints); got != "a" {
		t.Fatalf("expected a after draining, got %s", got)
	}
}

func TestLeastConnectionsDecrementFloor(t *testing.T) {
	lc := NewLeastConnections()

	lc.Decrement("a") // never goes negative
	lc.Increment("b")

	if got := lc.Next([]string{"a", "b"}); got != "a" {
		t.Fatalf("expected a at 0 connections, got %s", got)
	}
}

func TestNewStrategy(t *testing.T) {
	if s, err := NewStrategy(""); err != nil || s.Name() != "round_robin" {
		t.Fatalf("empty strategy should default to round_robin, got %v/%v", s, err)
	}
	if s, err := NewStrategy("least_connections"); err != nil || s.Name() != "least_connections" {
		t.Fatalf("expected least_connections, got %v/%v", s, err)
	}
	if _, err := NewStrategy("bogus"); err == nil {
		t.Fatal("unknown strategy must error")
	}
}
