package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/adapters/oidc"
)

// BuildVerifier returns the bearer-token verifier for the job API, or nil
// when verification is disabled. Issuer discovery happens here so a
// misconfigured issuer fails startup instead of every request.
func BuildVerifier(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (*oidc.Verifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.OIDC.Enabled {
		logger.WarnContext(ctx, "API authentication disabled", "reason", "AUTH_OIDC_ENABLED is false or issuer missing")
		return nil, nil
	}

	v, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
		Issuer:   cfg.OIDC.Issuer,
		Audience: cfg.OIDC.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("build oidc verifier: %w", err)
	}

	logger.InfoContext(ctx, "API authentication enabled", "issuer", cfg.OIDC.Issuer, "audience", cfg.OIDC.Audience)
	return v, nil
}
