package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/recommender"
	"github.com/temcen/shoprec/internal/storage"
	"github.com/temcen/shoprec/pkg/models"
)

const (
	ModelAdvanced = "advanced"
	ModelBasic    = "basic"
)

var (
	ErrUnknownModel   = errors.New("unknown model type")
	ErrModelNotLoaded = errors.New("model not loaded")
)

type loadedModel[T any] struct {
	model    T
	loadedAt time.Time
}

// ModelService serves lookups against the currently loaded recommenders.
// Reload replaces both models at once; lookups never block on it.
type ModelService struct {
	store    storage.Store
	taxonomy *catalog.Taxonomy
	logger   *logrus.Logger

	advanced atomic.Pointer[loadedModel[*recommender.Advanced]]
	basic    atomic.Pointer[loadedModel[*recommender.Basic]]
	reloadMu sync.Mutex

	// Prometheus metrics
	reloadsTotal *prometheus.CounterVec
	modelLoaded  *prometheus.GaugeVec
}

func NewModelService(store storage.Store, taxonomy *catalog.Taxonomy, logger *logrus.Logger) *ModelService {
	ms := &ModelService{
		store:    store,
		taxonomy: taxonomy,
		logger:   logger,
	}

	ms.reloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shoprec_model_reloads_total",
		Help: "Model reloads by outcome",
	}, []string{"outcome"})

	ms.modelLoaded = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shoprec_model_loaded_timestamp",
		Help: "Unix time the served model was loaded",
	}, []string{"model"})

	ms.reloadsTotal = RegisterCollector(ms.reloadsTotal, "shoprec_model_reloads_total", logger)
	ms.modelLoaded = RegisterCollector(ms.modelLoaded, "shoprec_model_loaded_timestamp", logger)

	return ms
}

// Reload loads both models from the store and swaps them in. On any error
// the models being served are left untouched.
func (s *ModelService) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	advanced, err := s.store.LoadAdvanced(ctx)
	if err != nil {
		s.reloadsTotal.WithLabelValues("failure").Inc()
		s.logger.WithError(err).Error("Failed to load advanced model")
		return fmt.Errorf("failed to load advanced model: %w", err)
	}

	basic, err := s.store.LoadBasic(ctx)
	if err != nil {
		s.reloadsTotal.WithLabelValues("failure").Inc()
		s.logger.WithError(err).Error("Failed to load basic model")
		return fmt.Errorf("failed to load basic model: %w", err)
	}

	now := time.Now()
	s.advanced.Store(&loadedModel[*recommender.Advanced]{model: advanced, loadedAt: now})
	s.basic.Store(&loadedModel[*recommender.Basic]{model: basic, loadedAt: now})

	s.reloadsTotal.WithLabelValues("success").Inc()
	s.modelLoaded.WithLabelValues(ModelAdvanced).Set(float64(now.Unix()))
	s.modelLoaded.WithLabelValues(ModelBasic).Set(float64(now.Unix()))

	s.logger.WithFields(logrus.Fields{
		"users":  advanced.UserCount(),
		"groups": len(advanced.Groups()),
	}).Info("Models loaded")

	return nil
}

// Recommend looks up the ranked products for user and category in the
// named model.
func (s *ModelService) Recommend(model string, userID int64, category catalog.Category) ([]int64, error) {
	rec, err := s.recommender(model)
	if err != nil {
		return nil, err
	}
	return rec.Recommend(userID, category)
}

func (s *ModelService) recommender(model string) (recommender.Recommender, error) {
	switch model {
	case ModelAdvanced:
		if loaded := s.advanced.Load(); loaded != nil {
			return loaded.model, nil
		}
	case ModelBasic:
		if loaded := s.basic.Load(); loaded != nil {
			return loaded.model, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, model)
}

// Taxonomy is the closed category set requests are resolved against.
func (s *ModelService) Taxonomy() *catalog.Taxonomy {
	return s.taxonomy
}

// Ready reports whether both models are loaded.
func (s *ModelService) Ready() bool {
	return s.advanced.Load() != nil && s.basic.Load() != nil
}

// Status describes the models currently served.
func (s *ModelService) Status() map[string]models.ModelStatus {
	status := map[string]models.ModelStatus{
		ModelAdvanced: {},
		ModelBasic:    {},
	}
	if loaded := s.advanced.Load(); loaded != nil {
		status[ModelAdvanced] = models.ModelStatus{
			Loaded:   true,
			LoadedAt: loaded.loadedAt,
			Users:    loaded.model.UserCount(),
			Groups:   len(loaded.model.Groups()),
		}
	}
	if loaded := s.basic.Load(); loaded != nil {
		status[ModelBasic] = models.ModelStatus{
			Loaded:   true,
			LoadedAt: loaded.loadedAt,
			Products: len(loaded.model.Global()),
		}
	}
	return status
}

// RegisterCollector registers c with the default registry, returning the
// already registered collector when another instance got there first.
func RegisterCollector[T prometheus.Collector](c T, name string, logger *logrus.Logger) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
			return c
		}
		logger.WithError(err).Warnf("Failed to register %s metric", name)
	}
	return c
}
