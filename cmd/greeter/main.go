package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	bootstrap.SetLogLevel(cfg.LogLevel)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	processed, err := bootstrap.OpenProcessedStore(ctx, bootstrap.StoreDeps{Config: &cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := processed.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close processed store failed", "error", cerr)
		}
	}()

	verifier, err := bootstrap.BuildVerifier(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:     &cfg,
		Processed:  processed,
		Verifier:   verifier,
		JobContext: jobCtx,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := services.Observability.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close metrics client failed", "error", cerr)
		}
	}()

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:     &cfg,
		Services:   services,
		CancelJobs: cancelJobs,
		Logger:     logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting greeter service",
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"store_backend", cfg.Store.Backend,
		"driver_url", cfg.Driver.BaseURL,
		"auth_enabled", cfg.Auth.OIDC.Enabled,
		"metrics_enabled", cfg.Observability.Metrics.IsEnabled())
}
