package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/greeter-api/internal/adapters/oidc"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, raw string) (oidc.Principal, error) {
	if raw != "good" {
		return oidc.Principal{}, errors.New("signature mismatch")
	}
	return oidc.Principal{Subject: "svc-greeter", Email: "svc@example.com"}, nil
}

func TestRequireBearer(t *testing.T) {
	var seen oidc.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireBearer(stubVerifier{}, slog.Default())(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
		wantAuth   string
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized, wantCode: "authentication_required", wantAuth: "Bearer"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "authentication_required", wantAuth: "Bearer"},
		{name: "invalid", header: "Bearer bad", wantStatus: http.StatusUnauthorized, wantCode: "invalid_token", wantAuth: `Bearer error="invalid_token"`},
		{name: "valid", header: "Bearer good", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = oidc.Principal{}
			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode == "" {
				assert.Equal(t, "svc-greeter", seen.Subject)
				return
			}
			assert.Equal(t, tt.wantAuth, rec.Header().Get("WWW-Authenticate"))
			var body errorBody
			require.NoError(t, jsonUnmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Empty(t, seen.Subject)
		})
	}
}

func TestRouter_AuthGuardsAPI(t *testing.T) {
	srv := newTestServer(t, TestServerOptions{Router: func(s *RouterServices) { s.Verifier = stubVerifier{} }})

	resp := DoJSON(t, JSONRequest{Method: http.MethodGet, URL: srv.URL + "/api/jobs"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = DoJSON(t, JSONRequest{
		Method: http.MethodGet,
		URL:    srv.URL + "/api/jobs",
		Header: http.Header{"Authorization": {"Bearer good"}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecover(t *testing.T) {
	h := Recover(slog.Default())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, jsonUnmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal", body.Error)
	assert.NotContains(t, body.Message, "kaboom")
}

func TestLogging_RecordsStatus(t *testing.T) {
	h := Logging(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRouter_UnknownAPIRoute(t *testing.T) {
	srv := newTestServer(t, TestServerOptions{})

	resp := DoJSON(t, JSONRequest{Method: http.MethodGet, URL: srv.URL + "/api/nothing-here"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "not_found", decode(t, resp)["error"])
}
