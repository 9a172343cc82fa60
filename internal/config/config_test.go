package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Len(t, cfg.Model.Categories, 5)
	assert.Equal(t, ";", cfg.Model.Separator)
	assert.Equal(t, 10, cfg.Model.Dimensions)
	assert.Equal(t, 8, cfg.Model.Clusters)
	assert.Equal(t, 50, cfg.Model.Restarts)
	assert.Equal(t, 10, cfg.Model.TopN)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, 80.0, cfg.Basic.Percentile)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 8, cfg.Evaluation.MinSessionSize)
	assert.Equal(t, 3, cfg.Evaluation.WindowSize)
	assert.False(t, cfg.Kafka.Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	yaml := `
model:
  categories: ["Gry na konsole", "Komputery"]
  clusters: 4
storage:
  kind: redis
redis:
  url: redis://localhost:6379/0
kafka:
  brokers: ["localhost:9092"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(yaml), 0o644))
	t.Setenv("MODEL_TOP_N", "5")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"Gry na konsole", "Komputery"}, cfg.Model.Categories)
	assert.Equal(t, 4, cfg.Model.Clusters)
	assert.Equal(t, 5, cfg.Model.TopN)
	assert.Equal(t, 10, cfg.Model.Dimensions)
	assert.Equal(t, "redis", cfg.Storage.Kind)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Model, cfg.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no categories", func(c *Config) { c.Model.Categories = nil }},
		{"empty category", func(c *Config) { c.Model.Categories = []string{"Komputery", ""} }},
		{"zero clusters", func(c *Config) { c.Model.Clusters = 0 }},
		{"percentile above 100", func(c *Config) { c.Basic.Percentile = 101 }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"unknown storage", func(c *Config) { c.Storage.Kind = "s3" }},
		{"postgres without url", func(c *Config) { c.Source.Kind = "postgres" }},
		{"redis without url", func(c *Config) { c.Storage.Kind = "redis" }},
		{"files without paths", func(c *Config) { c.Source.SessionsPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
