package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/costestimator"
	"github.com/tenantwise/dbgovernor/internal/gatekeeper"
	"github.com/tenantwise/dbgovernor/internal/metrics"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/tierconfig"
	"github.com/tenantwise/dbgovernor/internal/usage"
)

// promauto collectors register globally, so the package shares one set.
var testMetrics = metrics.New()

type fakePolicyStore struct {
	tier *models.TierDefinition
}

func (f *fakePolicyStore) GetTier(ctx context.Context, tenantID uuid.UUID) (*models.TierDefinition, error) {
	return f.tier, nil
}

type fakePlanner struct {
	cost float64
	err  error
}

func (f *fakePlanner) EstimateCost(ctx context.Context, query string) (float64, error) {
	return f.cost, f.err
}

type fakeAggregateStore struct {
	mu     sync.Mutex
	deltas []usage.AggregateDelta
}

func (f *fakeAggregateStore) Apply(ctx context.Context, delta usage.AggregateDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, delta)
	return nil
}

type admissionFixture struct {
	router   *gin.Engine
	tenant   *models.Tenant
	gate     *gatekeeper.Gatekeeper
	recorder *usage.Recorder
	store    *fakeAggregateStore
}

func intPtr(v int) *int { return &v }

func newFixture(tier *models.TierDefinition, planner costestimator.Planner, status int) *admissionFixture {
	gin.SetMode(gin.TestMode)

	tenant := &models.Tenant{ID: uuid.New(), Name: "acme", Tier: tier.Name, Status: "active"}
	gate := gatekeeper.New()
	store := &fakeAggregateStore{}
	recorder := usage.NewRecorder(store, gate, 100, time.Minute)

	deps := AdmissionDeps{
		Cache:     tierconfig.NewCache(&fakePolicyStore{tier: tier}, time.Minute),
		Gate:      gate,
		Redis:     nil,
		Estimator: costestimator.New(planner, 100*time.Millisecond),
		Recorder:  recorder,
		Metrics:   testMetrics,
	}

	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("tenant", tenant) })
	router.Use(Admission(deps))
	router.POST("/db/query", func(c *gin.Context) {
		c.JSON(status, gin.H{"ok": status < 400})
	})

	return &admissionFixture{router: router, tenant: tenant, gate: gate, recorder: recorder, store: store}
}

func (f *admissionFixture) do(body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/db/query", strings.NewReader(body))
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdmissionAllowsAndAttachesHeaders(t *testing.T) {
	tier := &models.TierDefinition{
		Name:              "starter",
		MaxConnections:    5,
		RequestsPerSecond: intPtr(50),
		CostCeiling:       10000,
		TimeoutMs:         15000,
	}
	f := newFixture(tier, &fakePlanner{cost: 100}, http.StatusOK)

	w := f.do(`{"query":"SELECT 1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-RateLimit-Limit") != "50" {
		t.Fatalf("expected rate limit header 50, got %q", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("X-RateLimit-Tier") != "starter" {
		t.Fatalf("expected tier header, got %q", w.Header().Get("X-RateLimit-Tier"))
	}

	// The lease must be released after the request completes
	if live := f.gate.LiveCount(f.tenant.ID); live != 0 {
		t.Fatalf("expected 0 live leases after completion, got %d", live)
	}
}

func TestAdmissionRejectsAtConnectionCeiling(t *testing.T) {
	tier := &models.TierDefinition{
		Name:           "tiny",
		MaxConnections: 2,
		CostCeiling:    10000,
		TimeoutMs:      5000,
	}
	f := newFixture(tier, &fakePlanner{cost: 1}, http.StatusOK)

	// Hold both slots so the next request hits the ceiling
	f.gate.Admit(f.tenant.ID, 2)
	f.gate.Admit(f.tenant.ID, 2)

	w := f.do(`{}`)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	var resp struct {
		Current int `json:"current"`
		Max     int `json:"max"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Current != 2 || resp.Max != 2 {
		t.Fatalf("expected 2/2 in rejection body, got %d/%d", resp.Current, resp.Max)
	}
}

func TestAdmissionThrottlesOverRateLimit(t *testing.T) {
	tier := &models.TierDefinition{
		Name:              "throttled",
		MaxConnections:    100,
		RequestsPerSecond: intPtr(2),
		CostCeiling:       10000,
		TimeoutMs:         5000,
	}
	f := newFixture(tier, &fakePlanner{cost: 1}, http.StatusOK)

	f.do(`{}`)
	f.do(`{}`)
	w := f.do(`{}`)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request should be throttled, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("throttled response must advertise Retry-After")
	}

	var resp struct {
		RetryAfterMs int64 `json:"retry_after_ms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RetryAfterMs < 0 || resp.RetryAfterMs > 1000 {
		t.Fatalf("retry_after_ms %d outside the window", resp.RetryAfterMs)
	}
}

func TestAdmissionRejectsOverCostCeiling(t *testing.T) {
	tier := &models.TierDefinition{
		Name:           "capped",
		MaxConnections: 100,
		CostCeiling:    10000,
		TimeoutMs:      5000,
	}
	f := newFixture(tier, &fakePlanner{cost: 15000}, http.StatusOK)

	w := f.do(`{"query":"SELECT * FROM huge"}`)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	var resp struct {
		EstimatedCost float64 `json:"estimated_cost"`
		Ceiling       float64 `json:"ceiling"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.EstimatedCost != 15000 || resp.Ceiling != 10000 {
		t.Fatalf("unexpected rejection body: %+v", resp)
	}
}

func TestAdmissionFailsOpenWhenPlannerDown(t *testing.T) {
	tier := &models.TierDefinition{
		Name:           "failopen",
		MaxConnections: 100,
		CostCeiling:    10000,
		TimeoutMs:      5000,
	}
	f := newFixture(tier, &fakePlanner{err: errors.New("planner down")}, http.StatusOK)

	w := f.do(`{"query":"SELECT 1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("planner outage must not reject requests, got %d", w.Code)
	}
}

func TestAdmissionPausedDuringTransition(t *testing.T) {
	tier := &models.TierDefinition{
		Name:           "moving",
		MaxConnections: 100,
		CostCeiling:    10000,
		TimeoutMs:      5000,
	}
	f := newFixture(tier, &fakePlanner{cost: 1}, http.StatusOK)

	f.gate.Block(f.tenant.ID)

	w := f.do(`{}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during transition, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("transition rejection must advertise Retry-After")
	}
}

func TestAdmissionRecordsUsage(t *testing.T) {
	tier := &models.TierDefinition{
		Name:           "billed",
		MaxConnections: 100,
		CostCeiling:    10000,
		TimeoutMs:      5000,
		WorkMemMB:      64,
	}
	f := newFixture(tier, &fakePlanner{cost: 200}, http.StatusOK)

	f.do(`{"query":"SELECT 1"}`)
	f.recorder.Flush(context.Background())

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.deltas) != 1 {
		t.Fatalf("expected 1 usage delta, got %d", len(f.store.deltas))
	}
	if f.store.deltas[0].TenantID != f.tenant.ID {
		t.Fatal("usage must be attributed to the requesting tenant")
	}
	if f.store.deltas[0].Requests != 1 {
		t.Fatalf("expected 1 request counted, got %d", f.store.deltas[0].Requests)
	}
}

func TestAdmissionPassesLargeBodiesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tier := &models.TierDefinition{
		Name:           "bulk",
		MaxConnections: 10,
		CostCeiling:    10000,
		TimeoutMs:      5000,
	}
	tenant := &models.Tenant{ID: uuid.New(), Name: "acme", Tier: tier.Name, Status: "active"}
	gate := gatekeeper.New()

	deps := AdmissionDeps{
		Cache:     tierconfig.NewCache(&fakePolicyStore{tier: tier}, time.Minute),
		Gate:      gate,
		Estimator: costestimator.New(&fakePlanner{cost: 1}, 100*time.Millisecond),
		Recorder:  usage.NewRecorder(&fakeAggregateStore{}, gate, 100, time.Minute),
		Metrics:   testMetrics,
	}

	received := 0
	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("tenant", tenant) })
	router.Use(Admission(deps))
	router.POST("/db/query", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		received = len(body)
		c.Status(http.StatusOK)
	})

	// Larger than the estimator will inspect; the remainder must still
	// reach the backend handler intact.
	sent := maxEstimableBody + 512*1024
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/db/query", bytes.NewReader(bytes.Repeat([]byte("a"), sent)))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if received != sent {
		t.Fatalf("body truncated in flight: sent %d bytes, handler saw %d", sent, received)
	}
}

func TestAdmissionCountsErrorOutcomes(t *testing.T) {
	tier := &models.TierDefinition{
		Name:           "erroring",
		MaxConnections: 100,
		CostCeiling:    10000,
		TimeoutMs:      5000,
	}
	f := newFixture(tier, &fakePlanner{cost: 1}, http.StatusInternalServerError)

	f.do(`{}`)
	f.recorder.Flush(context.Background())

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.deltas) != 1 || f.store.deltas[0].Errors != 1 {
		t.Fatalf("expected an error outcome, got %+v", f.store.deltas)
	}
}
