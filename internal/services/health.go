package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/pkg/models"
)

type HealthService struct {
	logger *logrus.Logger
	db     *database.Database
	models *ModelService

	// Prometheus metrics
	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
}

type HealthStatus struct {
	Status   string                        `json:"status"`
	Time     time.Time                     `json:"timestamp"`
	Services map[string]string             `json:"services"`
	Models   map[string]models.ModelStatus `json:"models"`
	Critical []string                      `json:"critical_failures,omitempty"`
	Degraded []string                      `json:"non_critical_failures,omitempty"`
}

func NewHealthService(logger *logrus.Logger, db *database.Database, modelService *ModelService) *HealthService {
	hs := &HealthService{
		logger: logger,
		db:     db,
		models: modelService,
	}

	hs.healthCheckStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	hs.lastHealthCheck = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"})

	hs.healthCheckStatus = RegisterCollector(hs.healthCheckStatus, "health_check_status", logger)
	hs.lastHealthCheck = RegisterCollector(hs.lastHealthCheck, "health_check_timestamp", logger)

	return hs
}

// CheckHealth reports unhealthy when a model is missing and degraded when a
// backing store does not answer. Loaded models keep being served without
// the store.
func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Time:     time.Now(),
		Services: make(map[string]string),
		Models:   s.models.Status(),
	}

	for name, model := range status.Models {
		service := "model_" + name
		if model.Loaded {
			status.Services[service] = "healthy"
			s.UpdateHealthMetrics(service, true)
		} else {
			status.Services[service] = "unhealthy"
			status.Critical = append(status.Critical, service)
			s.UpdateHealthMetrics(service, false)
		}
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		for name, err := range s.db.Ping(ctx) {
			if err != nil {
				status.Services[name] = "unhealthy"
				status.Degraded = append(status.Degraded, name)
				s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
				s.UpdateHealthMetrics(name, false)
			} else {
				status.Services[name] = "healthy"
				s.UpdateHealthMetrics(name, true)
			}
		}
	}

	switch {
	case len(status.Critical) > 0:
		status.Status = "unhealthy"
	case len(status.Degraded) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}

	return status
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
