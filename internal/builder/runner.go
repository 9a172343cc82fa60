// Package builder runs the offline model builds: it loads the raw records,
// builds a model, stores it and announces it to the serving instances.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/internal/dataset"
	"github.com/temcen/shoprec/internal/evaluation"
	"github.com/temcen/shoprec/internal/messaging"
	"github.com/temcen/shoprec/internal/pipeline"
	"github.com/temcen/shoprec/internal/recommender"
	"github.com/temcen/shoprec/internal/storage"
)

const (
	ModelAdvanced = "advanced"
	ModelBasic    = "basic"
)

type Runner struct {
	config   *config.Config
	logger   *logrus.Logger
	taxonomy *catalog.Taxonomy
	source   dataset.Source
	store    storage.Store
	notifier messaging.Notifier
}

func NewRunner(cfg *config.Config, logger *logrus.Logger, source dataset.Source, store storage.Store, notifier messaging.Notifier) (*Runner, error) {
	taxonomy, err := catalog.NewTaxonomy(cfg.Model.Categories, cfg.Model.Separator)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = messaging.NopNotifier{}
	}
	return &Runner{
		config:   cfg,
		logger:   logger,
		taxonomy: taxonomy,
		source:   source,
		store:    store,
		notifier: notifier,
	}, nil
}

// Open connects everything the configuration asks for and returns a runner
// with a function releasing those connections.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Runner, func() error, error) {
	db, err := database.New(ctx, cfg, database.BuilderRequirements(cfg), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var source dataset.Source
	switch cfg.Source.Kind {
	case "postgres":
		source = dataset.NewPostgresSource(db.PG)
	default:
		source = dataset.NewFileSource(cfg.Source.SessionsPath, cfg.Source.ProductsPath)
	}

	taxonomy, err := catalog.NewTaxonomy(cfg.Model.Categories, cfg.Model.Separator)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	store, err := storage.New(cfg.Storage, taxonomy, db.Redis, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	notifier := messaging.NewNotifier(cfg.Kafka, logger)
	runner, err := NewRunner(cfg, logger, source, store, notifier)
	if err != nil {
		notifier.Close()
		db.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		return errors.Join(notifier.Close(), db.Close())
	}
	return runner, closeFn, nil
}

// load reads sessions and products concurrently.
func (r *Runner) load(ctx context.Context) ([]dataset.Session, []dataset.Product, error) {
	var (
		sessions []dataset.Session
		products []dataset.Product
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = r.source.Sessions(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = r.source.Products(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to load data: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"source":   r.config.Source.Kind,
		"sessions": len(sessions),
		"products": len(products),
	}).Info("Data loaded")

	return sessions, products, nil
}

func (r *Runner) advancedBuilder() *pipeline.Builder {
	m := r.config.Model
	return pipeline.NewBuilder(
		r.taxonomy,
		pipeline.NewRandomizedSVD(m.SVDIterations, m.SVDOversample),
		pipeline.NewKMeans(m.MaxIterations, m.Workers),
		pipeline.Options{
			Dimensions: m.Dimensions,
			Clusters:   m.Clusters,
			Restarts:   m.Restarts,
			TopN:       m.TopN,
			Seed:       m.Seed,
		},
		r.logger,
	)
}

func (r *Runner) basicBuilder() *pipeline.BasicBuilder {
	return pipeline.NewBasicBuilder(r.taxonomy, pipeline.BasicOptions{
		TopN:       r.config.Basic.TopN,
		Percentile: r.config.Basic.Percentile,
	}, r.logger)
}

// BuildAdvanced builds the group model, stores it and announces it.
func (r *Runner) BuildAdvanced(ctx context.Context) (*pipeline.BuildReport, error) {
	sessions, products, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	model, report, err := r.advancedBuilder().Build(ctx, sessions, products)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveAdvanced(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to save advanced model: %w", err)
	}

	r.announce(ctx, messaging.ModelBuiltEvent{
		Model:    ModelAdvanced,
		Users:    report.Users,
		Groups:   report.Groups,
		Products: report.Products,
	})
	return report, nil
}

// BuildBasic builds the popularity model, stores it and announces it.
func (r *Runner) BuildBasic(ctx context.Context) (*pipeline.BasicReport, error) {
	sessions, products, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	model, report, err := r.basicBuilder().Build(ctx, sessions, products)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveBasic(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to save basic model: %w", err)
	}

	r.announce(ctx, messaging.ModelBuiltEvent{
		Model:    ModelBasic,
		Products: report.Ranked,
	})
	return report, nil
}

// announce publishes a build notification. The model is already stored, so
// a failed notification is only logged.
func (r *Runner) announce(ctx context.Context, event messaging.ModelBuiltEvent) {
	event.BuildID = uuid.New()
	event.Storage = r.config.Storage.Kind
	event.BuiltAt = time.Now().UTC()

	if err := r.notifier.PublishModelBuilt(ctx, event); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"build_id": event.BuildID,
			"model":    event.Model,
		}).Warn("Failed to announce model build")
	}
}

// Evaluate holds out part of the sessions, builds the named model on the
// rest and measures its hit rate on the held out events. Nothing is stored.
func (r *Runner) Evaluate(ctx context.Context, model string) (evaluation.Result, error) {
	sessions, products, err := r.load(ctx)
	if err != nil {
		return evaluation.Result{}, err
	}

	split, err := evaluation.SplitSessions(sessions, evaluation.SplitOptions{
		MinSessionSize: r.config.Evaluation.MinSessionSize,
		WindowSize:     r.config.Evaluation.WindowSize,
		Seed:           r.config.Evaluation.Seed,
	})
	if err != nil {
		return evaluation.Result{}, err
	}

	var rec recommender.Recommender
	switch model {
	case ModelAdvanced:
		rec, _, err = r.advancedBuilder().Build(ctx, split.Train, products)
	case ModelBasic:
		rec, _, err = r.basicBuilder().Build(ctx, split.Train, products)
	default:
		return evaluation.Result{}, fmt.Errorf("unknown model type %q", model)
	}
	if err != nil {
		return evaluation.Result{}, err
	}

	categories, err := pipeline.CategoryIndex(products, sessions, r.taxonomy)
	if err != nil {
		return evaluation.Result{}, err
	}

	result, err := evaluation.Evaluate(rec, split.Test, categories)
	if err != nil {
		return evaluation.Result{}, err
	}

	r.logger.WithFields(logrus.Fields{
		"model":         model,
		"train_events":  len(split.Train),
		"test_events":   result.Events,
		"evaluated":     result.Evaluated,
		"hits":          result.Hits,
		"unknown_users": result.UnknownUsers,
		"hit_rate":      result.HitRate,
	}).Info("Evaluation finished")

	return result, nil
}
