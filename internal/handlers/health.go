package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/services"
)

type HealthHandler struct {
	logger        *logrus.Logger
	healthService services.HealthCheckerInterface
	readiness     services.ReadinessInterface
}

func NewHealthHandler(logger *logrus.Logger, healthService services.HealthCheckerInterface, readiness services.ReadinessInterface) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
		readiness:     readiness,
	}
}

// Check reports models and backing stores. A store outage only degrades
// the service since lookups run from memory.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.healthService.CheckHealth(c.Request.Context())

	var httpStatus int
	switch status.Status {
	case "healthy", "degraded":
		httpStatus = http.StatusOK
	case "unhealthy":
		httpStatus = http.StatusServiceUnavailable
	default:
		httpStatus = http.StatusInternalServerError
	}

	if httpStatus != http.StatusOK {
		h.logger.WithField("critical", status.Critical).Warn("Health check failed")
	}
	c.JSON(httpStatus, status)
}

// Ready answers the readiness probe without touching the backing stores.
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.readiness.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
