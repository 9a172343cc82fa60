package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/internal/handlers"
	"github.com/temcen/shoprec/internal/messaging"
	"github.com/temcen/shoprec/internal/middleware"
	"github.com/temcen/shoprec/internal/services"
)

const startupTimeout = 30 * time.Second

type App struct {
	config      *config.Config
	logger      *logrus.Logger
	journal     *logrus.Logger
	journalFile *os.File
	db          *database.Database
	services    *services.Services
	handlers    *handlers.Handlers
	router      *gin.Engine

	consumer *messaging.Consumer
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// New builds the serving application. It fails unless both models load.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: NewLogger(cfg),
	}

	journal, file, err := setupJournal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open response log: %w", err)
	}
	app.journal = journal
	app.journalFile = file

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// Initialize database connections
	db, err := database.New(ctx, cfg, database.ServerRequirements(cfg), app.logger)
	if err != nil {
		app.closeJournal()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		app.closeResources()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	if err := services.Models.Reload(ctx); err != nil {
		app.closeResources()
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	// Initialize handlers
	app.handlers = handlers.New(app.logger, app.journal, services)

	// Setup router
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start runs the background workers. With Kafka configured every
// model-built notification for the configured storage triggers a reload.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	a.group = group

	if !a.config.Kafka.Enabled() {
		a.logger.Info("Kafka not configured, models reload only on admin request")
		return
	}

	a.consumer = messaging.NewConsumer(a.config.Kafka, a.logger)
	group.Go(func() error {
		err := a.consumer.Consume(ctx, a.onModelBuilt)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func (a *App) onModelBuilt(ctx context.Context, event messaging.ModelBuiltEvent) error {
	entry := a.logger.WithFields(logrus.Fields{
		"build_id": event.BuildID,
		"model":    event.Model,
		"storage":  event.Storage,
	})
	if event.Storage != a.config.Storage.Kind {
		entry.Debug("Ignoring model build for another storage backend")
		return nil
	}

	entry.Info("Model build announced, reloading")
	return a.services.Models.Reload(ctx)
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing Kafka consumer")
		}
	}
	if a.group != nil {
		done := make(chan error, 1)
		go func() { done <- a.group.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				a.logger.WithError(err).Warn("Background worker stopped with error")
			}
		case <-ctx.Done():
			a.logger.Warn("Timed out waiting for background workers")
		}
	}

	return a.closeResources()
}

func (a *App) closeResources() error {
	var err error
	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil {
			a.logger.WithError(closeErr).Error("Error closing database connections")
			err = closeErr
		}
	}
	a.closeJournal()
	return err
}

func (a *App) closeJournal() {
	if a.journalFile != nil {
		if err := a.journalFile.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing response log")
		}
		a.journalFile = nil
	}
}

// NewLogger builds the process logger from the logging configuration.
func NewLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// setupJournal opens the append-only response log. An empty path disables it.
func setupJournal(cfg *config.Config) (*logrus.Logger, *os.File, error) {
	if cfg.Logging.ResponseLog == "" {
		return nil, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Logging.ResponseLog), 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(cfg.Logging.ResponseLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	journal := logrus.New()
	journal.SetOutput(file)
	journal.SetFormatter(&logrus.JSONFormatter{})
	journal.SetLevel(logrus.InfoLevel)
	return journal, file, nil
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger, "/health", "/ready", "/metrics"))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/ready", a.handlers.Health.Ready)

	// Prometheus metrics endpoint (no auth required)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Recommendation lookups
	router.GET("/", a.handlers.Recommendation.Get)
	api := router.Group("/api/v1")
	{
		api.GET("/recommendations", a.handlers.Recommendation.Get)
	}

	// Admin routes
	admin := router.Group("/admin")
	{
		admin.Use(middleware.AdminAuth(a.services.Auth, a.logger))
		admin.GET("/models", a.handlers.Admin.GetModels)
		admin.POST("/models/reload", a.handlers.Admin.ReloadModels)
	}

	a.router = router
}
