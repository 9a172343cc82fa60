// Package storage persists the built recommenders as JSON documents, either
// as files or as Redis keys, and loads them back for serving.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/recommender"
	"github.com/temcen/shoprec/internal/validation"
)

var (
	ErrArtifactNotFound = errors.New("model artifact not found")
	ErrCorruptArtifact  = errors.New("model artifact is corrupt")
)

// Store saves and loads both recommenders. Saves replace the previous
// artifact wholesale.
type Store interface {
	SaveAdvanced(ctx context.Context, model *recommender.Advanced) error
	LoadAdvanced(ctx context.Context) (*recommender.Advanced, error)
	SaveBasic(ctx context.Context, model *recommender.Basic) error
	LoadBasic(ctx context.Context) (*recommender.Basic, error)
}

// New returns the store selected by cfg.Kind. client is only used for
// Redis storage.
func New(cfg config.StorageConfig, taxonomy *catalog.Taxonomy, client *redis.Client, logger *logrus.Logger) (Store, error) {
	switch cfg.Kind {
	case "files":
		return NewFileStore(FilePaths{
			UserToGroup:          cfg.UserToGroupPath,
			GroupRecommendations: cfg.GroupRecommendationsPath,
			Basic:                cfg.BasicPath,
		}, taxonomy, logger)
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis storage requires a redis client")
		}
		return NewRedisStore(client, cfg.RedisPrefix, taxonomy, logger)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

// codec turns raw documents into recommenders, checking their structure
// against the JSON schemas before typed decoding.
type codec struct {
	schemas  *validation.SchemaValidator
	taxonomy *catalog.Taxonomy
}

func newCodec(taxonomy *catalog.Taxonomy) (*codec, error) {
	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &codec{schemas: schemas, taxonomy: taxonomy}, nil
}

func (c *codec) encodeAdvanced(model *recommender.Advanced) (userToGroup, groups []byte, err error) {
	userToGroup, err = model.MarshalUserToGroup()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode user to group: %w", err)
	}
	groups, err = model.MarshalGroupRecommendations()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode group recommendations: %w", err)
	}
	return userToGroup, groups, nil
}

func (c *codec) decodeAdvanced(userToGroup, groups []byte) (*recommender.Advanced, error) {
	if err := c.schemas.Validate(validation.UserToGroupSchema, userToGroup).Err(); err != nil {
		return nil, fmt.Errorf("%w: user to group: %v", ErrCorruptArtifact, err)
	}
	if err := c.schemas.Validate(validation.GroupRecommendationsSchema, groups).Err(); err != nil {
		return nil, fmt.Errorf("%w: group recommendations: %v", ErrCorruptArtifact, err)
	}

	model, err := recommender.LoadAdvanced(userToGroup, groups, c.taxonomy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	return model, nil
}

func (c *codec) encodeBasic(model *recommender.Basic) ([]byte, error) {
	data, err := model.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode basic recommendations: %w", err)
	}
	return data, nil
}

func (c *codec) decodeBasic(data []byte) (*recommender.Basic, error) {
	if err := c.schemas.Validate(validation.BasicRecommendationsSchema, data).Err(); err != nil {
		return nil, fmt.Errorf("%w: basic recommendations: %v", ErrCorruptArtifact, err)
	}

	model, err := recommender.LoadBasic(data, c.taxonomy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	return model, nil
}
