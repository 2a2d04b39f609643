package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/greeter-api/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Services: "http,reaper",
		Store: config.StoreConfig{
			Backend:    config.StoreBackendSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "processed.db"),
		},
		Driver:   config.DriverConfig{BaseURL: "http://127.0.0.1:1", PlatformDomain: "x.com"},
		Delivery: config.DeliveryConfig{DefaultTemplate: config.DefaultMessageTemplate},
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
	}
	cfg.Sanitize()
	return cfg
}

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "http only", modes: []config.ServiceMode{config.ServiceModeHTTP}, want: 1},
		{name: "all services enabled", modes: config.ValidServiceModes(), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			assert.Equal(t, tt.want, errorChannelCapacity(enabled))
			assert.Equal(t, tt.want+1, errorChannelBufferSize(enabled))
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	assert.Equal(t, []string{"http", "reaper"}, GetEnabledServices(&config.AppConfig{Services: "reaper, http"}))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))

	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "http"}))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
	require.Error(t, ValidateServiceConfig(nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}

func TestOpenProcessedStore(t *testing.T) {
	ctx := context.Background()

	t.Run("none disables the ledger", func(t *testing.T) {
		ps, err := OpenProcessedStore(ctx, StoreDeps{
			Config: &config.AppConfig{Store: config.StoreConfig{Backend: config.StoreBackendNone}},
			Logger: discardLogger(),
		})
		require.NoError(t, err)
		assert.Nil(t, ps.Store)
		assert.Nil(t, ps.Lister)
		assert.Empty(t, ps.Checks)
		assert.NoError(t, ps.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testAppConfig(t)
		ps, err := OpenProcessedStore(ctx, StoreDeps{Config: cfg, Logger: discardLogger()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = ps.Close() })

		require.NotNil(t, ps.Store)
		require.NoError(t, ps.Store.Record(ctx, "@Alice", "acme"))
		ok, err := ps.Store.Exists(ctx, "alice", "acme")
		require.NoError(t, err)
		assert.True(t, ok)

		recs, err := ps.Lister.ListByOwner(ctx, "acme", 10)
		require.NoError(t, err)
		assert.Len(t, recs, 1)

		require.Contains(t, ps.Checks, "store")
		assert.NoError(t, ps.Checks["store"](ctx))
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := OpenProcessedStore(ctx, StoreDeps{})
		require.Error(t, err)
	})
}

func TestNewServices(t *testing.T) {
	cfg := testAppConfig(t)
	ps, err := OpenProcessedStore(context.Background(), StoreDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	svcs, err := NewServices(&ServiceDeps{Config: cfg, Processed: ps, Logger: discardLogger()})
	require.NoError(t, err)
	assert.NotNil(t, svcs.Jobs)
	assert.NotNil(t, svcs.JobStore)
	assert.Nil(t, svcs.Observability.MetricsSink, "metrics disabled by default")
	assert.NotNil(t, svcs.Observability.FailureNotifier)

	rs := routerServices(cfg, svcs, discardLogger())
	assert.Nil(t, rs.Verifier, "no verifier keeps the interface nil")
	assert.NotNil(t, rs.Processed)
	assert.Contains(t, rs.HealthChecks, "store")
	assert.Equal(t, cfg.HTTP.SyncTimeout, rs.SyncTimeout)
}

func TestNewServices_RejectsBadDriverConfig(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Driver.FollowersExpr = "notifications[?"

	_, err := NewServices(&ServiceDeps{Config: cfg, Logger: discardLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser worker")

	_, err = NewServices(nil)
	require.Error(t, err)
}

func TestRunServicesWithShutdown_StopsOnSignal(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Store.Backend = config.StoreBackendNone

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	svcs, err := NewServices(&ServiceDeps{Config: cfg, JobContext: jobCtx, Logger: discardLogger()})
	require.NoError(t, err)

	signals := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- RunServicesWithShutdown(&ServiceOrchestrationConfig{
			Config:     cfg,
			Services:   svcs,
			CancelJobs: cancelJobs,
			Logger:     discardLogger(),
			Signals:    signals,
		})
	}()

	signals <- syscall.SIGTERM
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("services did not stop")
	}
	assert.Error(t, jobCtx.Err(), "shutdown cancels the job context")
}
