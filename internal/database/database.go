package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
)

// Requirements names the connections a process opens.
type Requirements struct {
	Postgres bool
	Redis    bool
}

// ServerRequirements covers the serving process, which only reads stored
// models.
func ServerRequirements(cfg *config.Config) Requirements {
	return Requirements{Redis: cfg.Storage.Kind == "redis"}
}

// BuilderRequirements covers the builder, which also reads sessions.
func BuilderRequirements(cfg *config.Config) Requirements {
	return Requirements{
		Postgres: cfg.Source.Kind == "postgres",
		Redis:    cfg.Storage.Kind == "redis",
	}
}

// Database holds the connections a process needs. Either field may be nil
// when the process does not require it.
type Database struct {
	PG     *pgxpool.Pool
	Redis  *redis.Client
	logger *logrus.Logger
}

func New(ctx context.Context, cfg *config.Config, req Requirements, logger *logrus.Logger) (*Database, error) {
	db := &Database{
		logger: logger,
	}

	if req.Postgres {
		pool, err := openPostgreSQL(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		db.PG = pool
		logger.Info("PostgreSQL connection established")
	}

	if req.Redis {
		client, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		db.Redis = client
		logger.WithField("db", client.Options().DB).Info("Redis connection established")
	}

	return db, nil
}

func openPostgreSQL(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MaxConnIdleTime = cfg.MaxIdleTime
	poolConfig.MaxConnLifetime = cfg.MaxLifetime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return pool, nil
}

// redisOptions accepts either a redis:// URL or a bare host:port address.
func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var options *redis.Options
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: cfg.URL, DB: cfg.DB}
	}

	options.MaxRetries = cfg.MaxRetries
	options.PoolSize = cfg.PoolSize
	options.DialTimeout = cfg.Timeout
	options.ReadTimeout = cfg.Timeout
	options.WriteTimeout = cfg.Timeout
	return options, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	options, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

// Ping checks every open connection.
func (db *Database) Ping(ctx context.Context) map[string]error {
	results := make(map[string]error)
	if db.PG != nil {
		results["postgresql"] = db.PG.Ping(ctx)
	}
	if db.Redis != nil {
		results["redis"] = db.Redis.Ping(ctx).Err()
	}
	return results
}

func (db *Database) Close() error {
	var errs []error

	if db.PG != nil {
		db.PG.Close()
		db.PG = nil
		db.logger.Info("PostgreSQL connection closed")
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		} else {
			db.logger.Info("Redis connection closed")
		}
		db.Redis = nil
	}

	return errors.Join(errs...)
}
