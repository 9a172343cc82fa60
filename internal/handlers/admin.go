package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/pkg/models"
)

// AdminHandler handles model administration requests
type AdminHandler struct {
	logger   *logrus.Logger
	reloader services.ReloaderInterface
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(logger *logrus.Logger, reloader services.ReloaderInterface) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// GetModels returns the status of the served models
func (h *AdminHandler) GetModels(c *gin.Context) {
	c.JSON(http.StatusOK, models.ReloadResponse{
		Status: "ok",
		Models: h.reloader.Status(),
	})
}

// ReloadModels reloads both models from storage. A failed reload keeps the
// previous models in service.
func (h *AdminHandler) ReloadModels(c *gin.Context) {
	if err := h.reloader.Reload(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Admin model reload failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "RELOAD_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	h.logger.Info("Models reloaded by admin request")
	c.JSON(http.StatusOK, models.ReloadResponse{
		Status: "reloaded",
		Models: h.reloader.Status(),
	})
}
