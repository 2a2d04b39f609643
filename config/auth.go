package config

import "strings"

// OIDCConfig controls bearer-token verification for the job API.
type OIDCConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Issuer   string `env:"ISSUER"`
	Audience string `env:"AUDIENCE" envDefault:"greeter-api"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	OIDC OIDCConfig `envPrefix:"AUTH_OIDC_"`
}

// Sanitize disables OIDC verification when no issuer is configured.
func (a *AuthConfig) Sanitize() {
	a.OIDC.Issuer = strings.TrimSpace(a.OIDC.Issuer)
	a.OIDC.Audience = strings.TrimSpace(a.OIDC.Audience)
	if a.OIDC.Issuer == "" {
		a.OIDC.Enabled = false
	}
}
