package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/proxy"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

type SystemHandler struct {
	db      *storage.Postgres
	redis   *storage.RedisClient
	proxy   *proxy.Proxy
	started time.Time
}

func NewSystemHandler(db *storage.Postgres, redis *storage.RedisClient, proxy *proxy.Proxy) *SystemHandler {
	return &SystemHandler{
		db:      db,
		redis:   redis,
		proxy:   proxy,
		started: time.Now(),
	}
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// Aggregate readiness: degraded when the policy store or the limiter
// backend is down, unavailable when no backend endpoint passes probes.
func (h *SystemHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	dbOK := h.db.Ping(ctx) == nil

	redisOK := true
	if h.redis != nil {
		redisOK = h.redis.Ping(ctx) == nil
	}

	backends := h.proxy.HealthStatus()
	healthyCount := 0
	for _, s := range backends {
		if s.IsHealthy {
			healthyCount++
		}
	}

	status := "ok"
	code := http.StatusOK
	switch {
	case healthyCount == 0:
		status = "unavailable"
		code = http.StatusServiceUnavailable
	case !dbOK || !redisOK:
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":          status,
		"database":        dbOK,
		"redis":           redisOK,
		"backend_healthy": healthyCount,
		"backends":        backends,
		"circuit_breaker": h.proxy.CircuitBreakerState().String(),
		"uptime":          time.Since(h.started).String(),
	})
}
