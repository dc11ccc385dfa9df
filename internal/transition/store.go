package transition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/ratelimit"
	"github.com/tenantwise/dbgovernor/internal/repository"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

// A backing store that independently enforces tier policy. Applying a
// tier must be idempotent: rollback is expressed as Apply with the
// prior tier, since heterogeneous stores cannot offer a prepare phase.
type PolicyEnforcer interface {
	Name() string
	Apply(ctx context.Context, tenantID uuid.UUID, tier *models.TierDefinition) error
}

// Writes the tier assignment to the tenants table, the durable source
// of truth every future config resolution reads.
type PolicyStoreEnforcer struct {
	tenants *repository.TenantRepository
}

func NewPolicyStoreEnforcer(tenants *repository.TenantRepository) *PolicyStoreEnforcer {
	return &PolicyStoreEnforcer{tenants: tenants}
}

func (e *PolicyStoreEnforcer) Name() string {
	return "policy_store"
}

func (e *PolicyStoreEnforcer) Apply(ctx context.Context, tenantID uuid.UUID, tier *models.TierDefinition) error {
	return e.tenants.UpdateTier(ctx, tenantID, tier.Name)
}

// Clears the tenant's rate-limit windows and buckets in redis so the
// tenant starts clean under the new limits instead of inheriting a
// window shaped by the old ones.
type RateLimitEnforcer struct {
	redis *storage.RedisClient
}

func NewRateLimitEnforcer(redis *storage.RedisClient) *RateLimitEnforcer {
	return &RateLimitEnforcer{redis: redis}
}

func (e *RateLimitEnforcer) Name() string {
	return "rate_limit_state"
}

func (e *RateLimitEnforcer) Apply(ctx context.Context, tenantID uuid.UUID, tier *models.TierDefinition) error {
	return ratelimit.ResetTenant(ctx, e.redis, tenantID.String())
}

// Pushes the tier's session defaults (memory ceiling, parallelism,
// statement timeout) to the backend gateway, which enforces them for
// the tenant's future sessions.
type SessionDefaultsEnforcer struct {
	client  *http.Client
	baseURL string
	path    string
}

func NewSessionDefaultsEnforcer(baseURL, path string, timeout time.Duration) *SessionDefaultsEnforcer {
	return &SessionDefaultsEnforcer{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		path:    path,
	}
}

func (e *SessionDefaultsEnforcer) Name() string {
	return "session_defaults"
}

type sessionDefaultsRequest struct {
	TenantID           string `json:"tenant_id"`
	WorkMemMB          int    `json:"work_mem_mb"`
	MaxParallelWorkers int    `json:"max_parallel_workers"`
	StatementTimeoutMs int    `json:"statement_timeout_ms"`
}

func (e *SessionDefaultsEnforcer) Apply(ctx context.Context, tenantID uuid.UUID, tier *models.TierDefinition) error {
	body, err := json.Marshal(sessionDefaultsRequest{
		TenantID:           tenantID.String(),
		WorkMemMB:          tier.WorkMemMB,
		MaxParallelWorkers: tier.MaxParallelWorkers,
		StatementTimeoutMs: tier.TimeoutMs,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", e.baseURL+e.path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("session defaults endpoint returned %d", resp.StatusCode)
	}

	return nil
}
