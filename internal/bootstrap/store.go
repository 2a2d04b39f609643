package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/greeter-api/config"
	redisadapter "github.com/target/greeter-api/internal/adapters/redis"
	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/data"
	httpx "github.com/target/greeter-api/internal/http"
)

// ledger is the full surface every configured backend provides.
type ledger interface {
	core.ProcessedRecordStore
	core.ProcessedRecordLister
}

// ProcessedStore is the configured processed-follower ledger together with
// its health probes. A zero Store means idempotency is disabled.
type ProcessedStore struct {
	Backend config.StoreBackend
	Store   core.ProcessedRecordStore
	Lister  core.ProcessedRecordLister
	Checks  map[string]httpx.HealthCheck

	closers []func() error
}

// StoreDeps groups inputs for OpenProcessedStore.
type StoreDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// OpenProcessedStore connects the backend selected by STORE_BACKEND.
func OpenProcessedStore(ctx context.Context, deps StoreDeps) (*ProcessedStore, error) {
	if deps.Config == nil {
		return nil, errors.New("store config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	ps := &ProcessedStore{Backend: cfg.Store.Backend, Checks: map[string]httpx.HealthCheck{}}

	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		if err := ps.openPostgres(ctx, cfg, logger); err != nil {
			return nil, err
		}
	case config.StoreBackendSQLite:
		repo, err := data.OpenSQLiteProcessedRecordRepo(ctx, data.SQLiteOptions{Path: cfg.Store.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		ps.use(repo)
		ps.Checks["store"] = repo.DB.PingContext
		ps.closers = append(ps.closers, repo.Close)
		logger.InfoContext(ctx, "processed store ready", "backend", "sqlite", "path", cfg.Store.SQLitePath)
	case config.StoreBackendRedis:
		client, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		ps.use(redisadapter.NewProcessedStoreWithPrefix(client, cfg.Store.RedisPrefix))
		ps.Checks["store"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		ps.closers = append(ps.closers, client.Close)
		logger.InfoContext(ctx, "processed store ready", "backend", "redis", "prefix", cfg.Store.RedisPrefix)
	default:
		logger.WarnContext(ctx, "processed store disabled; followers may be messaged more than once across jobs")
	}

	return ps, nil
}

func (ps *ProcessedStore) openPostgres(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	db, err := ConnectDB(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err := RunMigrations(ctx, db, logger); err != nil {
			return errors.Join(err, db.Close())
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	ps.use(data.NewProcessedRecordRepo(db))
	ps.Checks["store"] = db.PingContext
	ps.closers = append(ps.closers, db.Close)
	return nil
}

func (ps *ProcessedStore) use(l ledger) {
	ps.Store = l
	ps.Lister = l
}

// Close releases every connection opened for the store.
func (ps *ProcessedStore) Close() error {
	if ps == nil {
		return nil
	}
	var errs []error
	for i := len(ps.closers) - 1; i >= 0; i-- {
		if err := ps.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	ps.closers = nil
	return errors.Join(errs...)
}
