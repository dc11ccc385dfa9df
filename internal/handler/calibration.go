package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/calibration"
	"github.com/tenantwise/dbgovernor/internal/service"
)

type CalibrationHandler struct {
	calibrator *calibration.Calibrator
	usage      *service.UsageService
}

func NewCalibrationHandler(calibrator *calibration.Calibrator, usage *service.UsageService) *CalibrationHandler {
	return &CalibrationHandler{calibrator: calibrator, usage: usage}
}

// Closes a billing period against the infrastructure invoice total.
// Calibration is one-shot per period; a second attempt returns 409.
func (h *CalibrationHandler) Close(c *gin.Context) {
	var req struct {
		Period        string  `json:"period" binding:"required"`
		ExternalTotal float64 `json:"external_total" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := time.Parse("2006-01", req.Period); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be formatted YYYY-MM"})
		return
	}

	record, err := h.calibrator.Close(c.Request.Context(), req.Period, req.ExternalTotal)
	if err != nil {
		switch {
		case errors.Is(err, calibration.ErrAlreadyCalibrated):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, calibration.ErrNoUsage):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *CalibrationHandler) List(c *gin.Context) {
	records, err := h.usage.ListCalibrations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

func (h *CalibrationHandler) Pending(c *gin.Context) {
	missing, err := h.calibrator.UncalibratedPeriods(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"uncalibrated_periods": missing})
}
