package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/domain/model"
)

func newCommandContext(t *testing.T, cfg config.AppConfig) (*commandContext, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Out:    &out,
	}, &out
}

func sqliteConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.AppConfig{Store: config.StoreConfig{
		Backend:    config.StoreBackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "processed.db"),
	}}
	cfg.Store.Sanitize()
	return cfg
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}

func TestMarkThenListProcessed(t *testing.T) {
	cfg := sqliteConfig(t)

	cmdCtx, out := newCommandContext(t, cfg)
	require.NoError(t, runMarkProcessed(cmdCtx, []string{"--owner", "@acme", "alice", "@bob"}))
	assert.Contains(t, out.String(), "Marked 2 followers of @acme")

	cmdCtx, out = newCommandContext(t, cfg)
	require.NoError(t, runListProcessed(cmdCtx, []string{"--owner", "acme"}))
	assert.Contains(t, out.String(), "Processed followers for @acme (2)")
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "bob")
}

func TestProcessedCommandsValidateFlags(t *testing.T) {
	cmdCtx, _ := newCommandContext(t, sqliteConfig(t))

	require.ErrorContains(t, runListProcessed(cmdCtx, nil), "--owner is required")
	require.ErrorContains(t, runListProcessed(cmdCtx, []string{"--owner", "acme", "--limit", "0"}), "--limit")
	require.ErrorContains(t, runMarkProcessed(cmdCtx, []string{"--owner", "acme"}), "at least one follower")
}

func TestProcessedCommandsRequireStore(t *testing.T) {
	cmdCtx, _ := newCommandContext(t, config.AppConfig{Store: config.StoreConfig{Backend: config.StoreBackendNone}})
	require.ErrorContains(t, runListProcessed(cmdCtx, []string{"--owner", "acme"}), "no processed store configured")
}

func TestCheckCookies(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cookies.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"name":"auth_token","value":"v","domain":".x.com"}]`), 0o600))

	cfg := config.AppConfig{Driver: config.DriverConfig{PlatformDomain: "x.com"}}
	cmdCtx, out := newCommandContext(t, cfg)
	require.NoError(t, runCheckCookies(cmdCtx, []string{"--file", good}))
	assert.Equal(t, "1 cookies OK\n", out.String())

	require.ErrorContains(t, runCheckCookies(cmdCtx, nil), "--file is required")
	require.Error(t, runCheckCookies(cmdCtx, []string{"--file", filepath.Join(dir, "missing.json")}))
}

func TestRenderCookieSummaryWarnsOnExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	creds := model.ResolvedCredentials{Cookies: []model.Cookie{
		{Name: "auth_token", Expires: float64(now.Add(-time.Hour).Unix())},
		{Name: "ct0", Expires: float64(now.Add(time.Hour).Unix())},
		{Name: "session"},
	}}

	var buf bytes.Buffer
	require.NoError(t, renderCookieSummary(&buf, creds, now))
	assert.Contains(t, buf.String(), "3 cookies OK")
	assert.Contains(t, buf.String(), "warning: cookie auth_token expired")
	assert.NotContains(t, buf.String(), "ct0")
}
