package config

import (
	"strings"
	"time"
)

// DefaultFollowersExpr extracts follower identities from the worker's notifications payload.
const DefaultFollowersExpr = "notifications[?type=='follow'].user.username"

// DriverConfig configures the remote browser-automation worker that
// performs session establishment, notification scans and message sends.
type DriverConfig struct {
	// BaseURL is the worker's HTTP endpoint.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`

	// Timeout bounds each worker request except message sends, which use
	// the delivery timeout instead.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"90s"`

	// FollowersExpr is a JMESPath expression evaluated against the
	// notifications response; it must yield a list of strings.
	FollowersExpr string `env:"FOLLOWERS_EXPR"`

	// PlatformDomain is the registrable domain session cookies must belong to.
	PlatformDomain string `env:"PLATFORM_DOMAIN" envDefault:"x.com"`

	// CookiesDir is the only directory cookies_path references may read from.
	// Empty disables file references.
	CookiesDir string `env:"COOKIES_DIR"`

	// Headless is forwarded to the worker when opening a session.
	Headless bool `env:"HEADLESS" envDefault:"true"`

	OAuth DriverOAuthConfig `envPrefix:"OAUTH_"`
}

// DriverOAuthConfig enables client-credentials auth against the worker.
type DriverOAuthConfig struct {
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:" "`
}

// Enabled reports whether enough fields are set to request tokens.
func (c DriverOAuthConfig) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// Sanitize applies guardrails to driver configuration values.
func (d *DriverConfig) Sanitize() {
	d.BaseURL = strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	if d.Timeout < time.Second {
		d.Timeout = time.Second
	}
	d.FollowersExpr = strings.TrimSpace(d.FollowersExpr)
	if d.FollowersExpr == "" {
		d.FollowersExpr = DefaultFollowersExpr
	}
	d.PlatformDomain = strings.ToLower(strings.TrimSpace(d.PlatformDomain))
	d.CookiesDir = strings.TrimSpace(d.CookiesDir)
	d.OAuth.TokenURL = strings.TrimSpace(d.OAuth.TokenURL)
	d.OAuth.ClientID = strings.TrimSpace(d.OAuth.ClientID)
}
