package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/dataset"
	"github.com/temcen/shoprec/internal/recommender"
)

// BasicOptions controls the popularity weighted model.
type BasicOptions struct {
	TopN       int
	Percentile float64
}

// BasicReport summarises a basic model build.
type BasicReport struct {
	Products      int           `json:"products"`
	Ranked        int           `json:"ranked"`
	MinPopularity float64       `json:"min_popularity"`
	MeanRating    float64       `json:"mean_rating"`
	Duration      time.Duration `json:"duration_ns"`
}

// BasicBuilder ranks catalog products by a weighted rating that pulls the
// rating of rarely viewed products towards the catalog average:
//
//	score = v/(v+m)*R + m/(v+m)*C
//
// v is the product's event count, R its rating, C the mean rating and m the
// configured percentile of event counts. Products below m are dropped.
type BasicBuilder struct {
	taxonomy *catalog.Taxonomy
	options  BasicOptions
	logger   *logrus.Logger
	metrics  *BuildMetrics
}

func NewBasicBuilder(taxonomy *catalog.Taxonomy, options BasicOptions, logger *logrus.Logger) *BasicBuilder {
	if logger == nil {
		logger = logrus.New()
	}
	return &BasicBuilder{
		taxonomy: taxonomy,
		options:  options,
		logger:   logger,
		metrics:  NewBuildMetrics(logger),
	}
}

type scoredProduct struct {
	id       int64
	category catalog.Category
	score    float64
}

func (b *BasicBuilder) Build(ctx context.Context, sessions []dataset.Session, products []dataset.Product) (*recommender.Basic, *BasicReport, error) {
	start := time.Now()
	basic, report, err := b.build(ctx, sessions, products)
	b.metrics.observeBuild("basic", time.Since(start).Seconds(), err)
	if err != nil {
		b.logger.WithError(err).Error("Basic model build failed")
		return nil, nil, err
	}

	report.Duration = time.Since(start)
	b.metrics.setBasic(report.Ranked)
	b.logger.WithFields(logrus.Fields{
		"products":       report.Products,
		"ranked":         report.Ranked,
		"min_popularity": report.MinPopularity,
		"mean_rating":    report.MeanRating,
		"duration":       report.Duration,
	}).Info("Basic model built")

	return basic, report, nil
}

func (b *BasicBuilder) build(ctx context.Context, sessions []dataset.Session, products []dataset.Product) (*recommender.Basic, *BasicReport, error) {
	if b.options.TopN < 1 || b.options.Percentile < 0 || b.options.Percentile > 100 {
		return nil, nil, fmt.Errorf("%w: top_n=%d percentile=%v", ErrInvalidConfig, b.options.TopN, b.options.Percentile)
	}
	if len(sessions) == 0 {
		return nil, nil, ErrNoInteractions
	}

	popularity := lo.CountValuesBy(sessions, func(s dataset.Session) int64 { return s.ProductID })

	// Only catalog products that were interacted with take part.
	viewed := lo.Filter(products, func(p dataset.Product, _ int) bool {
		_, ok := popularity[p.ProductID]
		return ok
	})
	if len(viewed) == 0 {
		return nil, nil, fmt.Errorf("%w: no catalog product appears in the sessions", ErrNoInteractions)
	}

	categories := make(map[int64]catalog.Category, len(viewed))
	for _, p := range viewed {
		c, err := b.taxonomy.Cast(p.CategoryPath)
		if err != nil {
			return nil, nil, fmt.Errorf("product %d: %w", p.ProductID, err)
		}
		categories[p.ProductID] = c
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	counts := lo.Map(viewed, func(p dataset.Product, _ int) float64 { return float64(popularity[p.ProductID]) })
	ratings := lo.Map(viewed, func(p dataset.Product, _ int) float64 { return p.UserRating })

	minPopularity := Percentile(counts, b.options.Percentile)
	meanRating := stat.Mean(ratings, nil)

	var scored []scoredProduct
	for i, p := range viewed {
		v := counts[i]
		if v < minPopularity {
			continue
		}
		scored = append(scored, scoredProduct{
			id:       p.ProductID,
			category: categories[p.ProductID],
			score:    WeightedRating(p.UserRating, v, minPopularity, meanRating),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})

	global := lo.Map(lo.Slice(scored, 0, b.options.TopN), func(s scoredProduct, _ int) int64 { return s.id })

	byCategory := make(map[catalog.Category][]int64)
	for _, s := range scored {
		if len(byCategory[s.category]) < b.options.TopN {
			byCategory[s.category] = append(byCategory[s.category], s.id)
		}
	}

	basic, err := recommender.NewBasic(global, byCategory, b.taxonomy)
	if err != nil {
		return nil, nil, err
	}

	return basic, &BasicReport{
		Products:      len(viewed),
		Ranked:        len(scored),
		MinPopularity: minPopularity,
		MeanRating:    meanRating,
	}, nil
}

// WeightedRating is v/(v+m)*rating + m/(v+m)*mean. With v and m both zero
// the mean is returned.
func WeightedRating(rating, v, m, mean float64) float64 {
	if v+m == 0 {
		return mean
	}
	return v/(v+m)*rating + m/(v+m)*mean
}

// Percentile returns the p-th percentile of values (0 <= p <= 100), linearly
// interpolating between the two closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
