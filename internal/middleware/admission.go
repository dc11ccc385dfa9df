package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/costestimator"
	"github.com/tenantwise/dbgovernor/internal/gatekeeper"
	"github.com/tenantwise/dbgovernor/internal/metrics"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/ratelimit"
	"github.com/tenantwise/dbgovernor/internal/session"
	"github.com/tenantwise/dbgovernor/internal/storage"
	"github.com/tenantwise/dbgovernor/internal/tierconfig"
	"github.com/tenantwise/dbgovernor/internal/usage"
)

// Largest request body the cost estimator will inspect.
const maxEstimableBody = 1 << 20

// Collaborators of the per-request admission pipeline.
type AdmissionDeps struct {
	Cache     *tierconfig.Cache
	Gate      *gatekeeper.Gatekeeper
	Redis     *storage.RedisClient
	Estimator *costestimator.Estimator
	Recorder  *usage.Recorder
	Metrics   *metrics.Metrics
}

// The admission pipeline: connection gatekeeping, rate limiting and
// cost estimation, in that order. Rejections are cheap and synchronous,
// before any backend resource is consumed. Admitted requests get their
// session config attached and, on completion, a usage event recorded.
func Admission(deps AdmissionDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.MustGet("tenant").(*models.Tenant)

		cfg, err := deps.Cache.Resolve(c.Request.Context(), tenant.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to resolve tier limits",
			})
			c.Abort()
			return
		}

		// Connection gatekeeping: the hard, never-bypassable limit
		lease, err := deps.Gate.Admit(tenant.ID, cfg.Tier.MaxConnections)
		if err != nil {
			var limitErr *gatekeeper.LimitError
			var transErr *gatekeeper.TransitioningError

			switch {
			case errors.As(err, &limitErr):
				deps.Metrics.ConnectionRejections.WithLabelValues(cfg.Tier.Name).Inc()
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":   "connection limit exceeded",
					"tier":    cfg.Tier.Name,
					"current": limitErr.Current,
					"max":     limitErr.Max,
				})
			case errors.As(err, &transErr):
				c.Header("Retry-After", "1")
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"error": "tier transition in progress, retry shortly",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "admission failed"})
			}
			c.Abort()
			return
		}
		defer deps.Gate.Release(lease)

		if !rateAdmit(c, deps, tenant, cfg) {
			return
		}

		estimate, ok := estimateCost(c, deps, cfg)
		if !ok {
			return
		}

		sc := session.Build(cfg)
		c.Set("tier_config", cfg)
		c.Set("session_config", sc)

		start := time.Now()
		c.Next()

		recordUsage(c, deps, tenant, cfg, sc, estimate, start)
	}
}

// Sliding-window / bucket admission. Unlimited tiers skip entirely so
// their windows never grow. A failing limiter backend admits the
// request: a brief permissive window is safe, a hard outage is not.
func rateAdmit(c *gin.Context, deps AdmissionDeps, tenant *models.Tenant, cfg *tierconfig.ResolvedTierConfig) bool {
	if cfg.Tier.Unlimited() {
		return true
	}

	limit := *cfg.Tier.RequestsPerSecond
	limiter := ratelimit.NewLimiter(deps.Redis, cfg.Tier.Algorithm, limit, time.Second)

	ctx := c.Request.Context()
	allowed, err := limiter.Allow(ctx, tenant.ID.String())
	if err != nil {
		log.Printf("Rate limit check failed for tenant %s, admitting: %v", tenant.ID, err)
		return true
	}

	remaining, _ := limiter.Remaining(ctx, tenant.ID.String())
	resetTime, _ := limiter.Reset(ctx, tenant.ID.String())

	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
	c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))
	c.Header("X-RateLimit-Tier", cfg.Tier.Name)

	if !allowed {
		retryAfter := time.Until(resetTime)
		if retryAfter < 0 {
			retryAfter = 0
		}
		if retryAfter > limiter.Window() {
			retryAfter = limiter.Window()
		}
		throttled := &ratelimit.ThrottledError{Limit: limiter.Limit(), RetryAfter: retryAfter}

		deps.Metrics.Throttles.WithLabelValues(cfg.Tier.Name).Inc()
		log.Printf("Tenant %s throttled: %v", tenant.ID, throttled)

		c.Header("Retry-After", fmt.Sprintf("%d", int(throttled.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":          "rate limit exceeded",
			"tier":           cfg.Tier.Name,
			"limit":          throttled.Limit,
			"retry_after_ms": throttled.RetryAfter.Milliseconds(),
		})
		c.Abort()
		return false
	}

	return true
}

// Pre-execution cost gate. Inspects at most maxEstimableBody bytes;
// the consumed prefix is stitched back in front of the unread remainder
// so the pass-through proxy forwards the body byte-for-byte.
func estimateCost(c *gin.Context, deps AdmissionDeps, cfg *tierconfig.ResolvedTierConfig) (*costestimator.CostEstimate, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEstimableBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		c.Abort()
		return nil, false
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))

	estimate, err := deps.Estimator.Estimate(c.Request.Context(), string(body), cfg.Tier.CostCeiling)
	if err != nil {
		var ceilingErr *costestimator.CeilingError
		if errors.As(err, &ceilingErr) {
			deps.Metrics.CostRejections.WithLabelValues(cfg.Tier.Name).Inc()
			c.JSON(http.StatusForbidden, gin.H{
				"error":          "cost ceiling exceeded",
				"tier":           cfg.Tier.Name,
				"estimated_cost": ceilingErr.Estimate,
				"ceiling":        ceilingErr.Ceiling,
			})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cost estimation failed"})
		}
		c.Abort()
		return nil, false
	}

	return estimate, true
}

// Emits the request's usage event after completion. Non-blocking:
// attribution never delays or fails the request it describes.
func recordUsage(c *gin.Context, deps AdmissionDeps, tenant *models.Tenant, cfg *tierconfig.ResolvedTierConfig,
	sc session.Config, estimate *costestimator.CostEstimate, start time.Time) {

	outcome := usage.OutcomeSuccess
	switch status := c.Writer.Status(); {
	case status == http.StatusGatewayTimeout:
		outcome = usage.OutcomeTimeout
		deps.Metrics.Timeouts.WithLabelValues(cfg.Tier.Name).Inc()
	case status >= 400:
		outcome = usage.OutcomeError
	}

	deps.Recorder.Record(usage.Event{
		TenantID:      tenant.ID,
		Timestamp:     start,
		Duration:      time.Since(start),
		EstimatedCost: estimate.Cost,
		CostEstimated: estimate.Estimated,
		MemoryMB:      sc.WorkMemMB,
		Parallelism:   sc.MaxParallelWorkers,
		Outcome:       outcome,
	})
}
