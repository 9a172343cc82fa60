package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/recommender"
)

// RedisStore keeps the same JSON documents as FileStore under
// <prefix>:advanced:user_to_group, <prefix>:advanced:group_recommendations
// and <prefix>:basic.
type RedisStore struct {
	client *redis.Client
	prefix string
	codec  *codec
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, prefix string, taxonomy *catalog.Taxonomy, logger *logrus.Logger) (*RedisStore, error) {
	c, err := newCodec(taxonomy)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client, prefix: prefix, codec: c, logger: logger}, nil
}

func (s *RedisStore) userToGroupKey() string {
	return s.prefix + ":advanced:user_to_group"
}

func (s *RedisStore) groupRecommendationsKey() string {
	return s.prefix + ":advanced:group_recommendations"
}

func (s *RedisStore) basicKey() string {
	return s.prefix + ":basic"
}

// SaveAdvanced writes both documents in one MULTI/EXEC transaction.
func (s *RedisStore) SaveAdvanced(ctx context.Context, model *recommender.Advanced) error {
	userToGroup, groups, err := s.codec.encodeAdvanced(model)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.userToGroupKey(), userToGroup, 0)
		pipe.Set(ctx, s.groupRecommendationsKey(), groups, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store advanced model: %w", err)
	}

	s.logger.WithField("prefix", s.prefix).Info("Advanced model saved to Redis")
	return nil
}

func (s *RedisStore) LoadAdvanced(ctx context.Context) (*recommender.Advanced, error) {
	values, err := s.client.MGet(ctx, s.userToGroupKey(), s.groupRecommendationsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load advanced model: %w", err)
	}

	docs := make([][]byte, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s:advanced", ErrArtifactNotFound, s.prefix)
		}
		docs[i] = []byte(str)
	}

	return s.codec.decodeAdvanced(docs[0], docs[1])
}

func (s *RedisStore) SaveBasic(ctx context.Context, model *recommender.Basic) error {
	data, err := s.codec.encodeBasic(model)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.basicKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store basic model: %w", err)
	}

	s.logger.WithField("prefix", s.prefix).Info("Basic model saved to Redis")
	return nil
}

func (s *RedisStore) LoadBasic(ctx context.Context) (*recommender.Basic, error) {
	data, err := s.client.Get(ctx, s.basicKey()).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, s.basicKey())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load basic model: %w", err)
	}

	return s.codec.decodeBasic(data)
}
