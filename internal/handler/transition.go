package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/repository"
)

type TransitionHandler struct {
	transitions *repository.TransitionRepository
}

func NewTransitionHandler(transitions *repository.TransitionRepository) *TransitionHandler {
	return &TransitionHandler{transitions: transitions}
}

// The transition audit log, most recent first. Inconsistent entries
// are the ones needing operator attention.
func (h *TransitionHandler) List(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)

	records, err := h.transitions.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

func (h *TransitionHandler) ListByTenant(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	limit := parseLimit(c.Query("limit"), 50)

	records, err := h.transitions.ListByTenant(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return fallback
	}
	return n
}
