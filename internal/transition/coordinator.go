package transition

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
)

// Per-store apply outcomes recorded in the audit trail.
const (
	storeApplied      = "applied"
	storeFailed       = "failed"
	storeReverted     = "reverted"
	storeRevertFailed = "revert_failed"
)

// Durable audit trail for transitions.
type RecordStore interface {
	Create(ctx context.Context, record *models.TransitionRecord) error
	Update(ctx context.Context, record *models.TransitionRecord) error
}

// Tier catalog lookups.
type TierCatalog interface {
	FindByName(ctx context.Context, name string) (*models.TierDefinition, error)
}

// Current tenant state, read to learn the from-tier.
type TenantSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Admission pause/resume during the drain phase. Implemented by the
// connection gatekeeper.
type Gate interface {
	Block(tenantID uuid.UUID)
	Unblock(tenantID uuid.UUID)
	WaitDrained(ctx context.Context, tenantID uuid.UUID, grace time.Duration) bool
}

// Implemented by the tier config cache.
type CacheInvalidator interface {
	Invalidate(tenantID uuid.UUID)
}

// Executes tier changes across every backing store that enforces tier
// policy. Not a distributed transaction: a failed apply triggers
// best-effort compensation of the stores already applied, and partial
// rollback failure is surfaced explicitly as an inconsistent record
// rather than hidden.
//
// One transition runs at a time per tenant; transitions for different
// tenants proceed concurrently. Rapid repeated requests for the same
// tenant coalesce to the latest requested tier.
type Coordinator struct {
	stores  []PolicyEnforcer
	records RecordStore
	catalog TierCatalog
	tenants TenantSource
	gate    Gate
	cache   CacheInvalidator
	grace   time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]string // coalesced latest target tier
	active  map[uuid.UUID]bool

	onOutcome func(outcome string) // optional metrics hook
}

func NewCoordinator(stores []PolicyEnforcer, records RecordStore, catalog TierCatalog,
	tenants TenantSource, gate Gate, cache CacheInvalidator, grace time.Duration) *Coordinator {
	return &Coordinator{
		stores:  stores,
		records: records,
		catalog: catalog,
		tenants: tenants,
		gate:    gate,
		cache:   cache,
		grace:   grace,
		pending: make(map[uuid.UUID]string),
		active:  make(map[uuid.UUID]bool),
	}
}

// Registers a callback invoked with each transition's final state.
func (c *Coordinator) OnOutcome(fn func(outcome string)) {
	c.onOutcome = fn
}

// Requests a transition to the named tier. Returns immediately; the
// transition runs out-of-band. A request for a tenant whose
// transition is still in flight replaces any previously queued target
// (no thrashing through intermediate tiers).
func (c *Coordinator) Request(tenantID uuid.UUID, toTier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[tenantID] = toTier

	if c.active[tenantID] {
		return
	}
	c.active[tenantID] = true

	go c.run(tenantID)
}

// Drains coalesced requests for one tenant, serially.
func (c *Coordinator) run(tenantID uuid.UUID) {
	for {
		c.mu.Lock()
		target, ok := c.pending[tenantID]
		if !ok {
			c.active[tenantID] = false
			c.mu.Unlock()
			return
		}
		delete(c.pending, tenantID)
		c.mu.Unlock()

		c.execute(context.Background(), tenantID, target)
	}
}

func (c *Coordinator) execute(ctx context.Context, tenantID uuid.UUID, toTier string) {
	tenant, err := c.tenants.FindByID(ctx, tenantID)
	if err != nil || tenant == nil {
		log.Printf("Transition for tenant %s aborted, tenant lookup failed: %v", tenantID, err)
		c.report(models.TransitionFailed)
		return
	}

	if tenant.Tier == toTier {
		log.Printf("Transition for tenant %s skipped, already on tier %s", tenantID, toTier)
		return
	}

	fromDef, toDef, err := c.lookupTiers(ctx, tenant.Tier, toTier)
	if err != nil {
		log.Printf("Transition for tenant %s aborted: %v", tenantID, err)
		c.report(models.TransitionFailed)
		return
	}

	record := &models.TransitionRecord{
		TenantID:  tenantID,
		FromTier:  tenant.Tier,
		ToTier:    toTier,
		State:     models.TransitionRequested,
		StartedAt: time.Now().UTC(),
	}
	if err := c.records.Create(ctx, record); err != nil {
		log.Printf("Transition for tenant %s aborted, cannot write audit record: %v", tenantID, err)
		c.report(models.TransitionFailed)
		return
	}

	// New admissions pause while existing leases drain normally.
	c.gate.Block(tenantID)
	defer c.gate.Unblock(tenantID)

	if drained := c.gate.WaitDrained(ctx, tenantID, c.grace); !drained {
		log.Printf("Transition for tenant %s proceeding with leases still in flight after %v grace", tenantID, c.grace)
	}

	record.State = models.TransitionApplying
	c.update(ctx, record)

	status := c.applyAll(ctx, tenantID, toDef)

	failed := false
	for _, outcome := range status {
		if outcome == storeFailed {
			failed = true
			break
		}
	}

	now := time.Now().UTC()

	if failed {
		record.State = models.TransitionRollingBack
		record.StoreStatus = marshalStatus(status)
		c.update(ctx, record)

		finalState := c.rollback(ctx, tenantID, fromDef, status)

		record.State = finalState
		record.StoreStatus = marshalStatus(status)
		record.Detail = fmt.Sprintf("apply failed, reverted to %s", fromDef.Name)
		if finalState == models.TransitionInconsistent {
			record.Detail = "apply and rollback both partially failed, operator intervention required"
		}
		record.FailedAt = &now
		c.update(ctx, record)
		c.report(finalState)

		log.Printf("Transition for tenant %s %s -> %s: %s", tenantID, record.FromTier, toTier, finalState)
		return
	}

	c.cache.Invalidate(tenantID)

	record.State = models.TransitionCommitted
	record.StoreStatus = marshalStatus(status)
	record.CompletedAt = &now
	c.update(ctx, record)
	c.report(models.TransitionCommitted)

	log.Printf("Transition for tenant %s committed: %s -> %s", tenantID, record.FromTier, toTier)
}

// Applies the target tier to every store in parallel and returns the
// per-store outcome map.
func (c *Coordinator) applyAll(ctx context.Context, tenantID uuid.UUID, tier *models.TierDefinition) map[string]string {
	status := make(map[string]string, len(c.stores))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, store := range c.stores {
		wg.Add(1)
		go func(s PolicyEnforcer) {
			defer wg.Done()

			err := s.Apply(ctx, tenantID, tier)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Store %s failed to apply tier %s for tenant %s: %v", s.Name(), tier.Name, tenantID, err)
				status[s.Name()] = storeFailed
			} else {
				status[s.Name()] = storeApplied
			}
		}(store)
	}

	wg.Wait()
	return status
}

// Best-effort compensation: re-applies the prior tier to every store
// that had already applied the new one. Returns Failed when all
// reverts succeed, Inconsistent when any revert also fails.
func (c *Coordinator) rollback(ctx context.Context, tenantID uuid.UUID, prior *models.TierDefinition, status map[string]string) string {
	finalState := models.TransitionFailed

	for _, store := range c.stores {
		if status[store.Name()] != storeApplied {
			continue
		}

		if err := store.Apply(ctx, tenantID, prior); err != nil {
			log.Printf("Store %s failed to revert tenant %s to tier %s: %v", store.Name(), tenantID, prior.Name, err)
			status[store.Name()] = storeRevertFailed
			finalState = models.TransitionInconsistent
		} else {
			status[store.Name()] = storeReverted
		}
	}

	return finalState
}

func (c *Coordinator) lookupTiers(ctx context.Context, from, to string) (*models.TierDefinition, *models.TierDefinition, error) {
	fromDef, err := c.catalog.FindByName(ctx, from)
	if err != nil {
		return nil, nil, err
	}
	if fromDef == nil {
		return nil, nil, fmt.Errorf("current tier %q not in catalog", from)
	}

	toDef, err := c.catalog.FindByName(ctx, to)
	if err != nil {
		return nil, nil, err
	}
	if toDef == nil {
		return nil, nil, fmt.Errorf("requested tier %q not in catalog", to)
	}

	return fromDef, toDef, nil
}

func (c *Coordinator) update(ctx context.Context, record *models.TransitionRecord) {
	if err := c.records.Update(ctx, record); err != nil {
		log.Printf("Failed to update transition record %s: %v", record.ID, err)
	}
}

func (c *Coordinator) report(outcome string) {
	if c.onOutcome != nil {
		c.onOutcome(outcome)
	}
}

func marshalStatus(status map[string]string) string {
	data, _ := json.Marshal(status)
	return string(data)
}
