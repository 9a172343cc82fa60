package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Model      ModelConfig      `mapstructure:"model"`
	Basic      BasicConfig      `mapstructure:"basic"`
	Source     SourceConfig     `mapstructure:"source"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Security   SecurityConfig   `mapstructure:"security"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=development production test"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=1"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	DB         int           `mapstructure:"db"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ModelsTopic   string   `mapstructure:"models_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"` // prefix of the per-instance group
}

// Enabled reports whether model-built notifications should be produced and consumed.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format" validate:"oneof=text json"`
	ResponseLog string `mapstructure:"response_log"`
}

// ModelConfig parameterises the advanced (group based) model builder.
type ModelConfig struct {
	Categories    []string `mapstructure:"categories" validate:"min=1,dive,required"`
	Separator     string   `mapstructure:"separator" validate:"required"`
	Dimensions    int      `mapstructure:"dimensions" validate:"min=1"`
	SVDIterations int      `mapstructure:"svd_iterations" validate:"min=0"`
	SVDOversample int      `mapstructure:"svd_oversample" validate:"min=0"`
	Clusters      int      `mapstructure:"clusters" validate:"min=1"`
	Restarts      int      `mapstructure:"restarts" validate:"min=1"`
	MaxIterations int      `mapstructure:"max_iterations" validate:"min=1"`
	TopN          int      `mapstructure:"top_n" validate:"min=1"`
	Seed          int64    `mapstructure:"seed"`
	Workers       int      `mapstructure:"workers" validate:"min=1"`
}

// BasicConfig parameterises the popularity weighted model builder.
type BasicConfig struct {
	TopN       int     `mapstructure:"top_n" validate:"min=1"`
	Percentile float64 `mapstructure:"percentile" validate:"gte=0,lte=100"`
}

type SourceConfig struct {
	Kind         string `mapstructure:"kind" validate:"oneof=files postgres"`
	SessionsPath string `mapstructure:"sessions_path"`
	ProductsPath string `mapstructure:"products_path"`
}

type StorageConfig struct {
	Kind                     string `mapstructure:"kind" validate:"oneof=files redis"`
	UserToGroupPath          string `mapstructure:"user_to_group_path"`
	GroupRecommendationsPath string `mapstructure:"group_recommendations_path"`
	BasicPath                string `mapstructure:"basic_path"`
	RedisPrefix              string `mapstructure:"redis_prefix"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type EvaluationConfig struct {
	MinSessionSize int   `mapstructure:"min_session_size" validate:"min=1"`
	WindowSize     int   `mapstructure:"window_size" validate:"min=1"`
	Seed           int64 `mapstructure:"seed"`
}

func Load() (*Config, error) {
	return LoadFrom("./config", ".")
}

// LoadFrom reads app.yaml from the first matching path, applies defaults and
// environment overrides, and validates the result.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Set defaults
	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &config
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Source.Kind == "files" && (c.Source.SessionsPath == "" || c.Source.ProductsPath == "") {
		return fmt.Errorf("invalid configuration: source.sessions_path and source.products_path are required for file sources")
	}
	if c.Source.Kind == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("invalid configuration: database.url is required for postgres sources")
	}
	if c.Storage.Kind == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("invalid configuration: redis.url is required for redis storage")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Database defaults
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.models_topic", "model-builds")
	v.SetDefault("kafka.consumer_group", "shoprec-servers")

	// Auth defaults
	v.SetDefault("auth.token_ttl", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.response_log", "logs/responses.log")

	// Advanced model defaults
	v.SetDefault("model.categories", []string{
		"Gry komputerowe",
		"Gry na konsole",
		"Sprzęt RTV",
		"Komputery",
		"Telefony i akcesoria",
	})
	v.SetDefault("model.separator", ";")
	v.SetDefault("model.dimensions", 10)
	v.SetDefault("model.svd_iterations", 10)
	v.SetDefault("model.svd_oversample", 10)
	v.SetDefault("model.clusters", 8)
	v.SetDefault("model.restarts", 50)
	v.SetDefault("model.max_iterations", 300)
	v.SetDefault("model.top_n", 10)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.workers", 4)

	// Basic model defaults
	v.SetDefault("basic.top_n", 10)
	v.SetDefault("basic.percentile", 80.0)

	// Source defaults
	v.SetDefault("source.kind", "files")
	v.SetDefault("source.sessions_path", "data/sessions.jsonl")
	v.SetDefault("source.products_path", "data/products.jsonl")

	// Storage defaults
	v.SetDefault("storage.kind", "files")
	v.SetDefault("storage.user_to_group_path", "models/advanced/user_to_group.json")
	v.SetDefault("storage.group_recommendations_path", "models/advanced/group_recommendations.json")
	v.SetDefault("storage.basic_path", "models/basic/recommendations.json")
	v.SetDefault("storage.redis_prefix", "shoprec")

	// Evaluation defaults
	v.SetDefault("evaluation.min_session_size", 8)
	v.SetDefault("evaluation.window_size", 3)
	v.SetDefault("evaluation.seed", 7)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}
