package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chainclock/chainclock/pkg/chains"
	"github.com/chainclock/chainclock/pkg/config"
	"github.com/chainclock/chainclock/pkg/db/clickhouse"
	"github.com/chainclock/chainclock/pkg/metrics"
	"github.com/chainclock/chainclock/pkg/query"
	"github.com/chainclock/chainclock/pkg/redis"
	"go.uber.org/zap"
)

// HealthCheck is one dependency checked by the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type App struct {
	Config *config.Config

	// Store is the ClickHouse client; Executor wraps it with the result cache when enabled.
	Store    *clickhouse.Client
	Executor query.Executor
	// Redis is nil unless the shared cache is enabled and reachable.
	Redis *redis.Client

	// Directory refreshes the known chains; Chains is what handlers read.
	Directory *chains.Directory
	Chains    query.ChainLister
	Builder   *query.Builder

	HealthChecks []HealthCheck
	Metrics      *metrics.Metrics

	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// QueryTimeout bounds a single store round trip.
func (a *App) QueryTimeout() time.Duration {
	if a.Config == nil || a.Config.Query.Timeout <= 0 {
		return 30 * time.Second
	}
	return a.Config.Query.Timeout
}

// MaxElementsQueried caps the limit of block lookups.
func (a *App) MaxElementsQueried() int {
	if a.Config == nil {
		return config.Default().Query.MaxElementsQueried
	}
	return a.Config.Query.MaxElementsQueried
}

// Start starts the chain directory and the server, and blocks until ctx is done.
func (a *App) Start(ctx context.Context) {
	if a.Directory != nil {
		if err := a.Directory.Start(ctx); err != nil {
			a.Logger.Fatal("Unable to start chain directory", zap.Error(err))
		}
	}

	go func() {
		a.Logger.Info("Starting server", zap.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Fatal("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	timeout := 10 * time.Second
	if a.Config != nil {
		timeout = a.Config.Server.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Failed to shut down server", zap.Error(err))
	}

	if a.Directory != nil {
		a.Directory.Shutdown()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}
