package config

import (
	"fmt"
	"strings"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"greeter"`
	Password string `env:"PASSWORD"                envDefault:"greeter"`
	Name     string `env:"NAME"                    envDefault:"greeter"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// StoreBackend selects where processed-follower records are kept.
type StoreBackend string

const (
	// StoreBackendNone disables the processed-record ledger entirely.
	StoreBackendNone StoreBackend = "none"
	// StoreBackendPostgres keeps records in the processed_followers table.
	StoreBackendPostgres StoreBackend = "postgres"
	// StoreBackendSQLite keeps records in a local SQLite file.
	StoreBackendSQLite StoreBackend = "sqlite"
	// StoreBackendRedis keeps records as Redis keys.
	StoreBackendRedis StoreBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreBackend.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	v := StoreBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case "":
		*b = StoreBackendNone
		return nil
	case StoreBackendNone, StoreBackendPostgres, StoreBackendSQLite, StoreBackendRedis:
		*b = v
		return nil
	default:
		return fmt.Errorf("invalid StoreBackend: %q (valid options: none, postgres, sqlite, redis)", v)
	}
}

// StoreConfig controls the processed-record ledger used for idempotency.
type StoreConfig struct {
	Backend StoreBackend `env:"BACKEND" envDefault:"none"`

	// SQLitePath is the database file used when Backend=sqlite.
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/processed.db"`

	// RedisPrefix namespaces keys when Backend=redis.
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"greeter:processed"`

	// LookupConcurrency bounds parallel Exists lookups during discovery.
	LookupConcurrency int `env:"LOOKUP_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	if s.Backend == "" {
		s.Backend = StoreBackendNone
	}
	s.SQLitePath = strings.TrimSpace(s.SQLitePath)
	if s.SQLitePath == "" {
		s.SQLitePath = "data/processed.db"
	}
	s.RedisPrefix = strings.TrimSpace(s.RedisPrefix)
	if s.RedisPrefix == "" {
		s.RedisPrefix = "greeter:processed"
	}
	if s.LookupConcurrency < 1 {
		s.LookupConcurrency = 1
	}
	if s.LookupConcurrency > 32 {
		s.LookupConcurrency = 32
	}
}
