package services

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/internal/storage"
)

type Services struct {
	Auth   *AuthService
	Health *HealthService
	Models *ModelService
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	taxonomy, err := catalog.NewTaxonomy(cfg.Model.Categories, cfg.Model.Separator)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.Storage, taxonomy, db.Redis, logger)
	if err != nil {
		return nil, err
	}

	modelService := NewModelService(store, taxonomy, logger)

	return &Services{
		Auth:   NewAuthService(cfg, logger),
		Health: NewHealthService(logger, db, modelService),
		Models: modelService,
	}, nil
}
