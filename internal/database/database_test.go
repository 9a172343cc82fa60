package database

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/config"
)

func TestRequirements(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Kind = "postgres"
	cfg.Storage.Kind = "redis"

	assert.Equal(t, Requirements{Redis: true}, ServerRequirements(cfg))
	assert.Equal(t, Requirements{Postgres: true, Redis: true}, BuilderRequirements(cfg))

	cfg.Storage.Kind = "files"
	assert.Equal(t, Requirements{}, ServerRequirements(cfg))
}

func TestNew_NothingRequired(t *testing.T) {
	db, err := New(context.Background(), config.Default(), Requirements{}, logrus.New())
	require.NoError(t, err)

	assert.Nil(t, db.PG)
	assert.Nil(t, db.Redis)
	assert.Empty(t, db.Ping(context.Background()))
	assert.NoError(t, db.Close())
}

func TestNew_BadPostgresURL(t *testing.T) {
	cfg := config.Default()
	cfg.Database.URL = "://not a url"

	_, err := New(context.Background(), cfg, Requirements{Postgres: true}, logrus.New())
	assert.ErrorContains(t, err, "failed to initialize PostgreSQL")
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		wantAddr string
		wantDB   int
	}{
		{
			name:     "url",
			cfg:      config.RedisConfig{URL: "redis://localhost:6380/3", DB: 9, Timeout: time.Second},
			wantAddr: "localhost:6380",
			wantDB:   3,
		},
		{
			name:     "bare address",
			cfg:      config.RedisConfig{URL: "localhost:6379", DB: 2, Timeout: time.Second},
			wantAddr: "localhost:6379",
			wantDB:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options, err := redisOptions(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, options.Addr)
			assert.Equal(t, tt.wantDB, options.DB)
			assert.Equal(t, time.Second, options.ReadTimeout)
		})
	}

	_, err := redisOptions(config.RedisConfig{URL: "http://localhost:6379"})
	assert.Error(t, err)
}
