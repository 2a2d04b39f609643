package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	tests := []struct {
		name       string
		method     string
		checks     map[string]HealthCheck
		wantStatus int
		wantBody   string
	}{
		{name: "no checks", method: http.MethodGet, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "all healthy", method: http.MethodGet, checks: map[string]HealthCheck{"store": ok}, wantStatus: http.StatusOK, wantBody: "ok"},
		{
			name:       "one failing",
			method:     http.MethodGet,
			checks:     map[string]HealthCheck{"store": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "degraded",
		},
		{name: "head", method: http.MethodHead, checks: map[string]HealthCheck{"redis": down}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &HealthHandler{Checks: tt.checks}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.method == http.MethodHead {
				assert.Zero(t, rec.Body.Len())
				return
			}
			var body healthBody
			require.NoError(t, jsonUnmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Status)
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, "dial tcp: connection refused", body.Checks["redis"])
				assert.NotContains(t, body.Checks, "store")
			}
		})
	}
}

func TestHealthHandler_ChecksHaveDeadline(t *testing.T) {
	h := &HealthHandler{Checks: map[string]HealthCheck{
		"slow": func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			return nil
		},
	}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_HealthzSkipsAuth(t *testing.T) {
	srv := newTestServer(t, TestServerOptions{Router: func(s *RouterServices) {
		s.Verifier = stubVerifier{}
	}})

	resp := DoJSON(t, JSONRequest{Method: http.MethodGet, URL: srv.URL + "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
