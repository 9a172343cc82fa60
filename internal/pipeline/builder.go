// Package pipeline builds the offline recommendation models from session
// logs: interaction matrix, latent space reduction, user clustering and
// per-group aggregation for the advanced model, weighted popularity for the
// basic one.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/dataset"
	"github.com/temcen/shoprec/internal/recommender"
)

// Options controls an advanced model build.
type Options struct {
	Dimensions int
	Clusters   int
	Restarts   int
	TopN       int
	Seed       int64
}

func (o Options) validate() error {
	if o.Dimensions < 1 || o.Clusters < 1 || o.Restarts < 1 || o.TopN < 1 {
		return fmt.Errorf("%w: dimensions=%d clusters=%d restarts=%d top_n=%d",
			ErrInvalidConfig, o.Dimensions, o.Clusters, o.Restarts, o.TopN)
	}
	return nil
}

// BuildReport summarises a finished build.
type BuildReport struct {
	Events             int           `json:"events"`
	Users              int           `json:"users"`
	Products           int           `json:"products"`
	Dimensions         int           `json:"dimensions"`
	Groups             int           `json:"groups"`
	UncategorizedItems int           `json:"uncategorized_items"`
	Duration           time.Duration `json:"duration_ns"`
}

// Builder runs the advanced pipeline. The reducer and clusterer are
// replaceable as long as they honour their contracts.
type Builder struct {
	taxonomy  *catalog.Taxonomy
	reducer   Reducer
	clusterer Clusterer
	options   Options
	logger    *logrus.Logger
	metrics   *BuildMetrics
}

func NewBuilder(taxonomy *catalog.Taxonomy, reducer Reducer, clusterer Clusterer, options Options, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{
		taxonomy:  taxonomy,
		reducer:   reducer,
		clusterer: clusterer,
		options:   options,
		logger:    logger,
		metrics:   NewBuildMetrics(logger),
	}
}

// Build turns sessions into an advanced recommender. Product categories come
// from the catalog first and from session annotations second.
func (b *Builder) Build(ctx context.Context, sessions []dataset.Session, products []dataset.Product) (*recommender.Advanced, *BuildReport, error) {
	start := time.Now()
	advanced, report, err := b.build(ctx, sessions, products)
	b.metrics.observeBuild("advanced", time.Since(start).Seconds(), err)
	if err != nil {
		b.logger.WithError(err).Error("Advanced model build failed")
		return nil, nil, err
	}

	report.Duration = time.Since(start)
	b.metrics.setAdvanced(report.Users, report.Groups, report.Products, report.UncategorizedItems)
	b.logger.WithFields(logrus.Fields{
		"events":        report.Events,
		"users":         report.Users,
		"products":      report.Products,
		"dimensions":    report.Dimensions,
		"groups":        report.Groups,
		"uncategorized": report.UncategorizedItems,
		"duration":      report.Duration,
	}).Info("Advanced model built")

	return advanced, report, nil
}

func (b *Builder) build(ctx context.Context, sessions []dataset.Session, products []dataset.Product) (*recommender.Advanced, *BuildReport, error) {
	if err := b.options.validate(); err != nil {
		return nil, nil, err
	}

	categories, err := CategoryIndex(products, sessions, b.taxonomy)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to cast categories: %w", err)
	}

	m, err := BuildInteractionMatrix(sessions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build interaction matrix: %w", err)
	}
	users, cols := m.Dims()
	b.logger.WithFields(logrus.Fields{
		"users":    users,
		"products": cols,
	}).Debug("Interaction matrix built")

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	dims, err := EffectiveDimensions(users, cols, b.options.Dimensions)
	if err != nil {
		return nil, nil, err
	}
	if dims < b.options.Dimensions {
		b.logger.WithFields(logrus.Fields{
			"requested": b.options.Dimensions,
			"effective": dims,
		}).Warn("Latent dimensions clamped to matrix size")
	}

	embedding, err := b.reducer.Reduce(m, dims, b.options.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reduce interaction matrix: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	assignment, err := b.clusterer.Cluster(embedding, b.options.Clusters, b.options.Restarts, b.options.Seed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to cluster users: %w", err)
	}
	if len(assignment) != users {
		return nil, nil, fmt.Errorf("clusterer assigned %d of %d users", len(assignment), users)
	}

	groups, stats, err := Aggregate(m, assignment, categories, b.options.TopN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to aggregate group recommendations: %w", err)
	}
	if stats.UncategorizedItems > 0 {
		b.logger.WithField("products", stats.UncategorizedItems).Warn("Products without a category were skipped")
	}

	advanced, err := recommender.NewAdvanced(assignment, groups, b.taxonomy)
	if err != nil {
		return nil, nil, err
	}

	return advanced, &BuildReport{
		Events:             m.Total(),
		Users:              users,
		Products:           cols,
		Dimensions:         dims,
		Groups:             stats.Groups,
		UncategorizedItems: stats.UncategorizedItems,
	}, nil
}
