package services

import (
	"context"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/pkg/models"
)

// RecommenderInterface defines the lookups served by the recommendation API
type RecommenderInterface interface {
	Recommend(model string, userID int64, category catalog.Category) ([]int64, error)
	Taxonomy() *catalog.Taxonomy
}

// ReloaderInterface defines the operations behind the model admin API
type ReloaderInterface interface {
	Reload(ctx context.Context) error
	Status() map[string]models.ModelStatus
}

// HealthCheckerInterface defines the interface for health reporting
type HealthCheckerInterface interface {
	CheckHealth(ctx context.Context) *HealthStatus
}

// ReadinessInterface reports whether lookups can be served
type ReadinessInterface interface {
	Ready() bool
}

var (
	_ RecommenderInterface   = (*ModelService)(nil)
	_ ReloaderInterface      = (*ModelService)(nil)
	_ ReadinessInterface     = (*ModelService)(nil)
	_ HealthCheckerInterface = (*HealthService)(nil)
)
