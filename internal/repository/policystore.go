package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
)

// Gorm-backed Tier Policy Store: resolves a tenant's current tier
// assignment to its full definition. Satisfies tierconfig.PolicyStore.
type PolicyStore struct {
	tenants *TenantRepository
	tiers   *TierRepository
}

func NewPolicyStore(tenants *TenantRepository, tiers *TierRepository) *PolicyStore {
	return &PolicyStore{tenants: tenants, tiers: tiers}
}

func (p *PolicyStore) GetTier(ctx context.Context, tenantID uuid.UUID) (*models.TierDefinition, error) {
	tenant, err := p.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("policy store lookup failed: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("unknown tenant %s", tenantID)
	}

	tier, err := p.tiers.FindByName(ctx, tenant.Tier)
	if err != nil {
		return nil, fmt.Errorf("policy store lookup failed: %w", err)
	}
	if tier == nil {
		return nil, fmt.Errorf("tenant %s references undefined tier %q", tenantID, tenant.Tier)
	}

	return tier, nil
}
