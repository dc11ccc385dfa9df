package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/repository"
	"github.com/tenantwise/dbgovernor/internal/service"
	"github.com/tenantwise/dbgovernor/internal/transition"
)

type TenantHandler struct {
	service     *service.TenantService
	tiers       *repository.TierRepository
	coordinator *transition.Coordinator
}

func NewTenantHandler(service *service.TenantService, tiers *repository.TierRepository,
	coordinator *transition.Coordinator) *TenantHandler {
	return &TenantHandler{
		service:     service,
		tiers:       tiers,
		coordinator: coordinator,
	}
}

func (h *TenantHandler) Create(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Tier string `json:"tier" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	tier, err := h.tiers.FindByName(ctx, req.Tier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tier == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier: " + req.Tier})
		return
	}

	tenant, key, err := h.service.Create(ctx, req.Name, req.Tier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"tenant":  tenant,
		"api_key": key,
		"message": "Save this key - it won't be shown again",
	})
}

func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tenants)
}

func (h *TenantHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	tenant, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// Triggers an out-of-band tier transition. Returns 202: the
// coordinator applies the change across all policy stores
// asynchronously, and the transition audit log reports the outcome.
func (h *TenantHandler) ChangeTier(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	var req struct {
		Tier string `json:"tier" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	tier, err := h.tiers.FindByName(ctx, req.Tier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tier == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier: " + req.Tier})
		return
	}

	tenant, err := h.service.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	h.coordinator.Request(id, req.Tier)

	// Drop the auth cache so suspended limits are not served stale
	h.service.InvalidateCache(ctx, id)

	c.JSON(http.StatusAccepted, gin.H{
		"message": "tier transition requested",
		"tenant":  id,
		"to_tier": req.Tier,
	})
}
