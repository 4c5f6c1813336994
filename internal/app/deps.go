// Package app opens the shared dependencies of the clinic binaries.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/config"
	"github.com/jwalitptl/clinic-api/internal/cache"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
)

// Bootstrap loads configuration and installs the global logger.
func Bootstrap(paths ...string) (*config.Config, error) {
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return nil, err
	}
	if _, err := logger.Setup(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore returns the configured store and a function releasing it. With
// the postgres store and auto_migrate set, pending migrations run first.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return memory.NewStore(), func() {}, nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		n, err := postgres.NewMigrator(db).Up(ctx)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info().Int("applied", n).Msg("database migrations applied")
	}
	return postgres.NewStore(db), func() { db.Close() }, nil
}

// OpenBroker connects to Redis. An empty URL or the memory store selects the
// in-process broker, which only reaches subscribers in the same process.
func OpenBroker(ctx context.Context, cfg *config.Config) (messaging.Broker, error) {
	if cfg.Redis.URL == "" || cfg.Store == config.StoreMemory {
		return messaging.NewMemoryBroker(), nil
	}
	return redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig())
}

// OpenCache connects the patient cache shared by API instances. It returns a
// nil cache when caching is disabled, Redis is not configured or the store is
// in memory.
func OpenCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	if !cfg.Cache.Enabled || cfg.Redis.URL == "" || cfg.Store == config.StoreMemory {
		return nil, func() {}, nil
	}

	opts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaxRetries = cfg.Redis.MaxRetries
	opts.MinRetryBackoff = cfg.Redis.RetryBackoff

	c := cache.NewRedisCache(goredis.NewClient(opts), "clinic:patient", cfg.Cache.PatientTTL)
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis cache: %w", err)
	}
	return c, func() { c.Close() }, nil
}
