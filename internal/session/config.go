package session

import (
	"fmt"
	"time"

	"github.com/tenantwise/dbgovernor/internal/tierconfig"
)

// Backend session parameters derived from a tenant's tier. Applied
// once per admitted connection; the attribution tag lets downstream
// accounting join backend activity back to the tenant.
type Config struct {
	WorkMemMB          int
	MaxParallelWorkers int
	StatementTimeout   time.Duration
	AttributionTag     string
}

// Pure mapping from tier to session parameters. No side effects;
// applying the config to the live connection is the proxy's job.
func Build(cfg *tierconfig.ResolvedTierConfig) Config {
	return Config{
		WorkMemMB:          cfg.Tier.WorkMemMB,
		MaxParallelWorkers: cfg.Tier.MaxParallelWorkers,
		StatementTimeout:   time.Duration(cfg.Tier.TimeoutMs) * time.Millisecond,
		AttributionTag:     fmt.Sprintf("governor:%s:%s", cfg.TenantID, cfg.Tier.Name),
	}
}
