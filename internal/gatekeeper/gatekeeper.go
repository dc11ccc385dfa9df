package gatekeeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// A live logical connection held by a tenant. The set of live leases
// per tenant is the concurrency counter.
type ConnectionLease struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	AcquiredAt time.Time
}

// Returned when a tenant is at its concurrency ceiling.
type LimitError struct {
	Current int
	Max     int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("connection limit exceeded: %d/%d connections in use", e.Current, e.Max)
}

// Returned while a tier transition is draining the tenant's leases.
type TransitioningError struct {
	TenantID uuid.UUID
}

func (e *TransitioningError) Error() string {
	return fmt.Sprintf("tenant %s is transitioning tiers, new connections paused", e.TenantID)
}

type tenantState struct {
	leases  map[uuid.UUID]*ConnectionLease
	peak    int
	blocked bool
}

// Admits or rejects logical connections against the per-tenant
// concurrency ceiling. This is the one fully reliable enforcement
// point on infrastructure without kernel-level isolation, so it is
// never bypassable.
//
// All state is in-memory by design: lease counts are rebuildable from
// zero on restart, and an empty ledger is briefly more permissive,
// never less.
type Gatekeeper struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*tenantState

	onLeaseChange func(tenantID uuid.UUID, live int) // optional gauge hook
}

func New() *Gatekeeper {
	return &Gatekeeper{
		tenants: make(map[uuid.UUID]*tenantState),
	}
}

// Registers a callback invoked with the live lease count after every
// admit and release.
func (g *Gatekeeper) OnLeaseChange(fn func(tenantID uuid.UUID, live int)) {
	g.onLeaseChange = fn
}

// Atomically checks the tenant's live-lease count against max and
// registers a new lease when under the ceiling.
func (g *Gatekeeper) Admit(tenantID uuid.UUID, max int) (*ConnectionLease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.state(tenantID)

	if state.blocked {
		return nil, &TransitioningError{TenantID: tenantID}
	}

	if len(state.leases) >= max {
		return nil, &LimitError{Current: len(state.leases), Max: max}
	}

	lease := &ConnectionLease{
		ID:         uuid.New(),
		TenantID:   tenantID,
		AcquiredAt: time.Now(),
	}
	state.leases[lease.ID] = lease

	if len(state.leases) > state.peak {
		state.peak = len(state.leases)
	}

	if g.onLeaseChange != nil {
		g.onLeaseChange(tenantID, len(state.leases))
	}

	return lease, nil
}

// Removes a lease. Releasing the same lease twice is a no-op.
func (g *Gatekeeper) Release(lease *ConnectionLease) {
	if lease == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.tenants[lease.TenantID]
	if !ok {
		return
	}

	if _, held := state.leases[lease.ID]; !held {
		return
	}

	delete(state.leases, lease.ID)

	if g.onLeaseChange != nil {
		g.onLeaseChange(lease.TenantID, len(state.leases))
	}
}

// Returns the tenant's current live lease count.
func (g *Gatekeeper) LiveCount(tenantID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.tenants[tenantID]
	if !ok {
		return 0
	}
	return len(state.leases)
}

// Returns the tenant's peak concurrency since the last call and
// resets it to the current live count. Consumed by the usage batcher.
func (g *Gatekeeper) PeakAndReset(tenantID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.tenants[tenantID]
	if !ok {
		return 0
	}

	peak := state.peak
	state.peak = len(state.leases)
	return peak
}

// Pauses new admissions for the tenant. Existing leases drain
// normally.
func (g *Gatekeeper) Block(tenantID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state(tenantID).blocked = true
}

// Resumes admissions for the tenant.
func (g *Gatekeeper) Unblock(tenantID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state(tenantID).blocked = false
}

// Waits until the tenant has no live leases or the grace period
// elapses, whichever comes first. Returns true when fully drained.
func (g *Gatekeeper) WaitDrained(ctx context.Context, tenantID uuid.UUID, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if g.LiveCount(tenantID) == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return g.LiveCount(tenantID) == 0
		case <-ticker.C:
		}
	}
}

// Caller must hold g.mu.
func (g *Gatekeeper) state(tenantID uuid.UUID) *tenantState {
	state, ok := g.tenants[tenantID]
	if !ok {
		state = &tenantState{leases: make(map[uuid.UUID]*ConnectionLease)}
		g.tenants[tenantID] = state
	}
	return state
}
