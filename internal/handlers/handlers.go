package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
}

// New wires the handlers to services. journal receives every recommendation
// response body.
func New(logger, journal *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health, services.Models),
		Recommendation: NewRecommendationHandler(services.Models, journal, logger),
		Admin:          NewAdminHandler(logger, services.Models),
	}
}
