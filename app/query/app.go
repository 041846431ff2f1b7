package query

import (
	"context"
	"fmt"

	"github.com/chainclock/chainclock/app/query/types"
	"github.com/chainclock/chainclock/pkg/cache"
	"github.com/chainclock/chainclock/pkg/chains"
	"github.com/chainclock/chainclock/pkg/config"
	"github.com/chainclock/chainclock/pkg/db/clickhouse"
	"github.com/chainclock/chainclock/pkg/logging"
	"github.com/chainclock/chainclock/pkg/metrics"
	"github.com/chainclock/chainclock/pkg/query"
	"github.com/chainclock/chainclock/pkg/redis"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		panic(err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	app, err := Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Unable to initialize application", zap.Error(err))
	}
	return app
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*types.App, error) {
	m := metrics.New()

	store, err := clickhouse.New(ctx, logger, clickhouse.Options{
		DSN:             cfg.ClickHouse.DSN,
		Database:        cfg.ClickHouse.Database,
		ConnStrategy:    cfg.ClickHouse.ConnStrategy,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		DialTimeout:     cfg.ClickHouse.DialTimeout,
		QueryTimeout:    cfg.Query.Timeout,
		ChainsTable:     cfg.Query.ChainsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}

	checks := []types.HealthCheck{{Name: "clickhouse", Check: store.Ping}}

	// Redis is optional: the service still answers from ClickHouse without it
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, logger, redis.Options{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Warn("Failed to initialize Redis client - shared result cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			checks = append(checks, types.HealthCheck{Name: "redis", Check: redisClient.Health})
		}
	} else {
		logger.Info("Redis disabled - results are cached in process only")
	}

	var executor query.Executor = store
	if cfg.Cache.Enabled {
		opts := cache.Options{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
			Requests:   m.CacheRequests,
		}
		if redisClient != nil {
			opts.Remote = redisClient
		}
		executor = cache.New(store, logger.Named("cache"), opts)
	}

	directory := chains.New(store, logger.Named("chains"), chains.Options{
		Interval:        cfg.Chains.RefreshInterval,
		FetchTimeout:    cfg.Chains.FetchTimeout,
		RetainOnFailure: cfg.Chains.RetainOnFailure,
		OnPublish:       func(s *chains.Set) { m.ChainDirectorySize.Set(float64(s.Len())) },
	})

	builder, err := query.NewBuilder(query.Tables{
		Blocks:     cfg.Query.BlocksTable,
		Aggregates: cfg.Query.AggregatesTable,
	}, directory)
	if err != nil {
		return nil, fmt.Errorf("query builder: %w", err)
	}

	return &types.App{
		Config:       cfg,
		Store:        store,
		Executor:     executor,
		Redis:        redisClient,
		Directory:    directory,
		Chains:       directory,
		Builder:      builder,
		HealthChecks: checks,
		Metrics:      m,
		Logger:       logger,
	}, nil
}
