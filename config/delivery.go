package config

import (
	"strings"
	"time"
)

// DefaultMessageTemplate is used when a submission omits its own template.
const DefaultMessageTemplate = "Hey @{{.Username}}, thanks for the follow! Glad to have you here."

// DeliveryConfig holds the retry, timeout and pacing policy shared by every job.
type DeliveryConfig struct {
	// MessageTimeout bounds a single send; expiry counts as a failed send.
	MessageTimeout time.Duration `env:"MESSAGE_TIMEOUT" envDefault:"2m"`

	// PacingMin and PacingMax bound the randomized delay between candidates.
	PacingMin time.Duration `env:"PACING_MIN" envDefault:"20s"`
	PacingMax time.Duration `env:"PACING_MAX" envDefault:"60s"`

	// ConnectMaxAttempts bounds session establishment and reconnection.
	ConnectMaxAttempts int `env:"CONNECT_MAX_ATTEMPTS" envDefault:"5"`
	// ConnectBaseDelay is multiplied by the attempt number between attempts.
	ConnectBaseDelay time.Duration `env:"CONNECT_BASE_DELAY" envDefault:"5s"`

	// DiscoveryAttempts and DiscoveryBackoff control notification scan retries.
	DiscoveryAttempts int           `env:"DISCOVERY_ATTEMPTS" envDefault:"3"`
	DiscoveryBackoff  time.Duration `env:"DISCOVERY_BACKOFF"  envDefault:"10s"`

	// RetryFailedOnNextRun leaves failed candidates unrecorded so a later
	// job attempts them again. By default a failed attempt consumes the candidate.
	RetryFailedOnNextRun bool `env:"RETRY_FAILED_NEXT_RUN" envDefault:"false"`

	// DefaultTemplate is a text/template with .Username and .Owner fields.
	DefaultTemplate string `env:"DEFAULT_TEMPLATE"`
}

// Sanitize applies guardrails to delivery configuration values.
func (d *DeliveryConfig) Sanitize() {
	if d.MessageTimeout <= 0 {
		d.MessageTimeout = 2 * time.Minute
	}
	if d.PacingMin < 0 {
		d.PacingMin = 0
	}
	if d.PacingMax < d.PacingMin {
		d.PacingMax = d.PacingMin
	}
	if d.ConnectMaxAttempts < 1 {
		d.ConnectMaxAttempts = 1
	}
	if d.ConnectBaseDelay < 0 {
		d.ConnectBaseDelay = 0
	}
	if d.DiscoveryAttempts < 1 {
		d.DiscoveryAttempts = 1
	}
	if d.DiscoveryBackoff < 0 {
		d.DiscoveryBackoff = 0
	}
	if strings.TrimSpace(d.DefaultTemplate) == "" {
		d.DefaultTemplate = DefaultMessageTemplate
	}
}
