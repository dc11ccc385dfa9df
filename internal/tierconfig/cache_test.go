package tierconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
)

type fakeStore struct {
	tier  *models.TierDefinition
	err   error
	calls int
}

func (f *fakeStore) GetTier(ctx context.Context, tenantID uuid.UUID) (*models.TierDefinition, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tier, nil
}

func proTier() *models.TierDefinition {
	return &models.TierDefinition{
		Name:           "pro",
		MaxConnections: 20,
		CostCeiling:    100000,
		TimeoutMs:      60000,
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	store := &fakeStore{tier: proTier()}
	cache := NewCache(store, 30*time.Second)

	tenant := uuid.New()
	ctx := context.Background()

	first, err := cache.Resolve(ctx, tenant)
	if err != nil {
		t.Fatal(err)
	}
	if first.Tier.Name != "pro" {
		t.Fatalf("expected pro, got %s", first.Tier.Name)
	}

	cache.Resolve(ctx, tenant)
	cache.Resolve(ctx, tenant)

	if store.calls != 1 {
		t.Fatalf("expected a single store read within TTL, got %d", store.calls)
	}
}

func TestResolveRefreshesAfterTTL(t *testing.T) {
	store := &fakeStore{tier: proTier()}
	cache := NewCache(store, 30*time.Second)

	now := time.Now()
	cache.now = func() time.Time { return now }

	tenant := uuid.New()
	ctx := context.Background()

	cache.Resolve(ctx, tenant)
	now = now.Add(31 * time.Second)
	cache.Resolve(ctx, tenant)

	if store.calls != 2 {
		t.Fatalf("expected a re-read after TTL, got %d calls", store.calls)
	}
}

func TestResolveServesStaleOnStoreOutage(t *testing.T) {
	store := &fakeStore{tier: proTier()}
	cache := NewCache(store, 30*time.Second)

	now := time.Now()
	cache.now = func() time.Time { return now }

	staleServed := 0
	cache.OnStale(func() { staleServed++ })

	tenant := uuid.New()
	ctx := context.Background()

	cache.Resolve(ctx, tenant)

	store.err = errors.New("policy store down")
	now = now.Add(31 * time.Second)

	cfg, err := cache.Resolve(ctx, tenant)
	if err != nil {
		t.Fatalf("outage with a cached entry must not error: %v", err)
	}
	if !cfg.Stale {
		t.Fatal("config served past TTL during an outage must be marked stale")
	}
	if cfg.Tier.Name != "pro" {
		t.Fatalf("stale config should keep the last known tier, got %s", cfg.Tier.Name)
	}
	if staleServed != 1 {
		t.Fatalf("expected 1 staleness callback, got %d", staleServed)
	}
}

func TestResolveFailSafeWhenNothingCached(t *testing.T) {
	store := &fakeStore{err: errors.New("policy store down")}
	cache := NewCache(store, 30*time.Second)

	cfg, err := cache.Resolve(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("outage must not propagate: %v", err)
	}
	if !cfg.Fallback {
		t.Fatal("expected the fail-safe fallback marker")
	}
	if cfg.Tier.Name != FailSafeTier.Name {
		t.Fatalf("expected fail-safe tier %q, got %q", FailSafeTier.Name, cfg.Tier.Name)
	}
	if cfg.Tier.MaxConnections != 2 {
		t.Fatalf("fail-safe must carry the most conservative limits, got %d connections", cfg.Tier.MaxConnections)
	}
}

func TestInvalidateForcesReResolve(t *testing.T) {
	store := &fakeStore{tier: proTier()}
	cache := NewCache(store, time.Hour)

	tenant := uuid.New()
	ctx := context.Background()

	cache.Resolve(ctx, tenant)
	cache.Invalidate(tenant)
	cache.Resolve(ctx, tenant)

	if store.calls != 2 {
		t.Fatalf("invalidate must force a store re-read, got %d calls", store.calls)
	}
}
