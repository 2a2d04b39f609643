package httpx

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthCheck probes one dependency; a nil error means healthy.
type HealthCheck func(ctx context.Context) error

// healthCheckTimeout bounds every probe so a stuck dependency cannot hang the endpoint.
const healthCheckTimeout = 2 * time.Second

// HealthHandler reports readiness for liveness probes and load balancers.
type HealthHandler struct {
	Checks map[string]HealthCheck
}

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeHTTP runs every check concurrently and returns 503 when any fails.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	failures := h.run(r.Context())

	status := http.StatusOK
	body := healthBody{Status: "ok"}
	if len(failures) > 0 {
		status = http.StatusServiceUnavailable
		body = healthBody{Status: "degraded", Checks: failures}
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return
	}
	WriteJSON(w, status, body)
}

func (h *HealthHandler) run(ctx context.Context) map[string]string {
	if len(h.Checks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures map[string]string
	)
	for name, check := range h.Checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := check(ctx); err != nil {
				mu.Lock()
				if failures == nil {
					failures = map[string]string{}
				}
				failures[name] = err.Error()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return failures
}
