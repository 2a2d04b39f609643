package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/migrate"
)

// The ledger sees one Exists lookup per candidate and one insert per sent
// message, so a small pool is plenty.
const (
	ledgerMaxOpenConns = 8
	ledgerMaxIdleConns = 2
	ledgerConnLifetime = 10 * time.Minute
	connectTimeout     = 5 * time.Second
)

// DatabaseConfig contains configuration for the Postgres and Redis connections
// backing the processed-follower ledger.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens and pings the Postgres ledger database.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(ledgerMaxOpenConns)
	db.SetMaxIdleConns(ledgerMaxIdleConns)
	db.SetConnMaxLifetime(ledgerConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping postgres: %w", err), db.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(ctx, "ledger database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
		)
	}
	return db, nil
}

// postgresDSN renders cfg as a keyword/value connection string. Values are
// single-quoted so passwords may hold spaces and quotes.
func postgresDSN(cfg config.DBConfig) string {
	pairs := []struct{ key, value string }{
		{"host", cfg.Host},
		{"port", fmt.Sprint(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteDSNValue(p.value))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// ConnectRedis builds the Redis client selected by cfg and pings it.
//
//nolint:ireturn // sentinel, cluster and single-node clients share redis.UniversalClient.
func ConnectRedis(ctx context.Context, cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, mode, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case "sentinel":
		client = redis.NewFailoverClient(opts.Failover())
	case "cluster":
		client = redis.NewClusterClient(opts.Cluster())
	default:
		client = redis.NewClient(opts.Simple())
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis (%s): %w", mode, err), client.Close())
	}

	if cfg.Logger != nil {
		// Addrs never carry credentials; URLs are parsed before they land here.
		cfg.Logger.InfoContext(ctx, "ledger redis connected", "mode", mode, "addrs", opts.Addrs)
	}
	return client, nil
}

// redisOptions maps config onto go-redis options and reports which client
// mode they are meant for: "sentinel", "cluster" or "single".
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password}

	if cfg.UseSentinel {
		opts.Addrs = trimAll(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis sentinel mode needs SENTINEL_NODES")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, "sentinel", nil
	}

	mode := "single"
	if cfg.UseCluster {
		mode = "cluster"
		opts.Addrs = trimAll(cfg.ClusterNodes)
	}
	if len(opts.Addrs) == 0 {
		uri := strings.TrimSpace(cfg.URI)
		if uri == "" {
			return nil, "", fmt.Errorf("redis %s mode needs a URI", mode)
		}
		if err := applyRedisURI(opts, uri); err != nil {
			return nil, "", err
		}
	}
	return opts, mode, nil
}

// applyRedisURI accepts either a bare host:port or a redis:// / rediss:// URL.
// Credentials in the URL win over the configured password.
func applyRedisURI(opts *redis.UniversalOptions, uri string) error {
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	if parsed.Username != "" {
		opts.Username = parsed.Username
	}
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	return nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RunMigrations applies the Postgres schema for the processed-follower ledger.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db, migrate.Postgres); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "ledger migrations applied")
	}
	return nil
}
