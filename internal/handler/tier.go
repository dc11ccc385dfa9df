package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/repository"
)

type TierHandler struct {
	tiers *repository.TierRepository
}

func NewTierHandler(tiers *repository.TierRepository) *TierHandler {
	return &TierHandler{tiers: tiers}
}

func (h *TierHandler) List(c *gin.Context) {
	tiers, err := h.tiers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tiers)
}

func (h *TierHandler) Get(c *gin.Context) {
	tier, err := h.tiers.FindByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tier not found"})
		return
	}

	c.JSON(http.StatusOK, tier)
}
