package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/service"
)

type UsageHandler struct {
	service *service.UsageService
}

func NewUsageHandler(service *service.UsageService) *UsageHandler {
	return &UsageHandler{service: service}
}

// Period defaults to the current month when the query param is absent.
func (h *UsageHandler) Period(c *gin.Context) {
	period := c.DefaultQuery("period", h.service.CurrentPeriod())

	billed, err := h.service.GetPeriod(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"period":  period,
		"tenants": billed,
	})
}

func (h *UsageHandler) Tenant(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	period := c.DefaultQuery("period", h.service.CurrentPeriod())

	billed, err := h.service.GetTenant(c.Request.Context(), id, period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if billed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no usage recorded for tenant in period"})
		return
	}

	c.JSON(http.StatusOK, billed)
}
