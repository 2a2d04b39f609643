package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// MaxUploadBytes caps multipart cookie uploads.
	MaxUploadBytes int64 `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"1048576"`

	// SyncTimeout bounds a synchronous welcome run before the request is abandoned.
	SyncTimeout time.Duration `env:"HTTP_SYNC_TIMEOUT" envDefault:"2h"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.MaxUploadBytes < 1024 {
		h.MaxUploadBytes = 1024
	}
	if h.SyncTimeout < time.Minute {
		h.SyncTimeout = time.Minute
	}
}
