package tierconfig

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
)

// Source of truth for tenant -> tier assignment. Backed by the
// tenants and tier_definitions tables in production.
type PolicyStore interface {
	GetTier(ctx context.Context, tenantID uuid.UUID) (*models.TierDefinition, error)
}

// Materialized limits for one tenant, replaced wholesale on every
// re-resolution. Never mutated after creation.
type ResolvedTierConfig struct {
	TenantID   uuid.UUID
	Tier       models.TierDefinition
	ResolvedAt time.Time
	Stale      bool // served past TTL because the policy store was unreachable
	Fallback   bool // policy store unreachable with nothing cached
}

// FailSafeTier is returned when the policy store is unreachable and no
// cached config exists. Deliberately the most conservative limits in
// the catalog so an outage can only under-provision, never over-admit.
var FailSafeTier = models.TierDefinition{
	Name:               "free",
	MaxConnections:     2,
	RequestsPerSecond:  intPtr(5),
	CostCeiling:        1000,
	TimeoutMs:          5000,
	WorkMemMB:          16,
	MaxParallelWorkers: 1,
	Algorithm:          "sliding_window",
}

func intPtr(v int) *int { return &v }

type cacheEntry struct {
	config *ResolvedTierConfig
}

// Short-TTL read-through cache over the policy store so the hot path
// does not hit postgres on every request.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*cacheEntry
	store   PolicyStore
	ttl     time.Duration
	now     func() time.Time

	onStale func() // optional hook, increments the staleness metric
}

func NewCache(store PolicyStore, ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[uuid.UUID]*cacheEntry),
		store:   store,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Registers a callback invoked whenever a stale config is served.
func (c *Cache) OnStale(fn func()) {
	c.onStale = fn
}

// Returns the tenant's effective limits. Availability over freshness:
// a policy store outage serves the last known config (stale, logged)
// or the fail-safe default when nothing is cached.
func (c *Cache) Resolve(ctx context.Context, tenantID uuid.UUID) (*ResolvedTierConfig, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.config.ResolvedAt) < c.ttl {
		return entry.config, nil
	}

	tier, err := c.store.GetTier(ctx, tenantID)
	if err != nil {
		if ok {
			log.Printf("Policy store unreachable for tenant %s, serving stale tier config (age %v): %v",
				tenantID, c.now().Sub(entry.config.ResolvedAt), err)
			if c.onStale != nil {
				c.onStale()
			}
			stale := *entry.config
			stale.Stale = true
			return &stale, nil
		}

		log.Printf("Policy store unreachable for tenant %s with no cached config, using fail-safe tier: %v", tenantID, err)
		return &ResolvedTierConfig{
			TenantID:   tenantID,
			Tier:       FailSafeTier,
			ResolvedAt: c.now(),
			Fallback:   true,
		}, nil
	}

	config := &ResolvedTierConfig{
		TenantID:   tenantID,
		Tier:       *tier,
		ResolvedAt: c.now(),
	}

	c.mu.Lock()
	c.entries[tenantID] = &cacheEntry{config: config}
	c.mu.Unlock()

	return config, nil
}

// Forces the next Resolve to bypass the cache. Called by the tier
// transition coordinator after a committed transition.
func (c *Cache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}
