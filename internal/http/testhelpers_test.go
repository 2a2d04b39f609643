package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/adapters/credentials"
	"github.com/target/greeter-api/internal/data"
	"github.com/target/greeter-api/internal/service"
	"github.com/target/greeter-api/internal/testutil"
)

// testCookies is a minimal cookie export accepted for the x.com platform.
const testCookies = `[{"name":"auth_token","value":"v","domain":".x.com"}]`

// testServer bundles a router wired to the real job pipeline over a fake driver.
type testServer struct {
	*httptest.Server
	Jobs   *service.JobService
	Driver *testutil.FakeDriver
	// CookiesDir is the only directory cookies_path references may read.
	CookiesDir string
}

// TestServerOptions customises newTestServer.
type TestServerOptions struct {
	Driver      *testutil.FakeDriver
	Delivery    func(*config.DeliveryConfig)
	Router      func(*RouterServices)
	SyncTimeout time.Duration
}

// newTestServer starts an httptest server. Pacing and retry delays are zero
// so runs finish immediately; the job base context is cancelled on cleanup.
func newTestServer(t *testing.T, opts TestServerOptions) *testServer {
	t.Helper()

	driver := opts.Driver
	if driver == nil {
		driver = &testutil.FakeDriver{Followers: []string{"alice"}}
	}
	cfg := config.DeliveryConfig{
		MessageTimeout:     5 * time.Second,
		ConnectMaxAttempts: 2,
		DiscoveryAttempts:  2,
		DefaultTemplate:    config.DefaultMessageTemplate,
	}
	if opts.Delivery != nil {
		opts.Delivery(&cfg)
	}

	base, cancel := context.WithCancel(context.Background())
	resolver := credentials.NewResolver("x.com")
	resolver.BaseDir = t.TempDir()
	jobs := service.MustNewJobService(service.JobServiceOptions{
		Store:           data.NewMemoryJobStore(data.MemoryJobStoreOptions{}),
		Resolver:        resolver,
		DefaultTemplate: cfg.DefaultTemplate,
		BaseContext:     base,
	})
	processed := testutil.NewMemoryProcessedStore("acme")
	discovery, err := service.NewDiscoveryService(service.DiscoveryServiceOptions{
		Driver:   driver,
		Store:    processed,
		Attempts: cfg.DiscoveryAttempts,
		Backoff:  cfg.DiscoveryBackoff,
	})
	if err != nil {
		t.Fatalf("discovery: %v", err)
	}
	delivery, err := service.NewDeliveryLoop(service.DeliveryLoopOptions{
		Jobs: jobs, Driver: driver, Store: processed, Config: cfg,
	})
	if err != nil {
		t.Fatalf("delivery: %v", err)
	}
	runner, err := service.NewWelcomeRunner(service.WelcomeRunnerOptions{
		Jobs: jobs, Driver: driver, Resolver: resolver, Discovery: discovery, Delivery: delivery, Config: cfg,
	})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	jobs.BindRunner(runner)

	svcs := RouterServices{
		Jobs:           jobs,
		MaxUploadBytes: 1 << 20,
		SyncTimeout:    opts.SyncTimeout,
	}
	if opts.Router != nil {
		opts.Router(&svcs)
	}

	srv := httptest.NewServer(NewRouter(svcs))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = jobs.Wait(ctx)
	})
	return &testServer{Server: srv, Jobs: jobs, Driver: driver, CookiesDir: resolver.BaseDir}
}

// JSONRequest encapsulates the parameters needed to execute a JSON HTTP request.
type JSONRequest struct {
	Method  string
	URL     string
	Payload any
	Header  http.Header
}

// DoJSON creates a request with context and performs it using the default client.
func DoJSON(t testutil.TestingTB, req JSONRequest) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	var body bytes.Buffer
	if req.Payload != nil {
		if err := json.NewEncoder(&body).Encode(req.Payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	if req.Method == "" || req.URL == "" {
		t.Fatalf("DoJSON requires Method and URL")
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// multipartBody builds a multipart form with the given fields and an optional cookies file.
func multipartBody(t *testing.T, fields map[string]string, cookies string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if cookies != "" {
		fw, err := mw.CreateFormFile(cookiesField, "cookies.json")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := fw.Write([]byte(cookies)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// decode reads a JSON response body into a generic map.
func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// waitJobs blocks until every job started by the server has returned.
func (s *testServer) waitJobs(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Jobs.Wait(ctx); err != nil {
		t.Fatalf("jobs did not finish: %v", err)
	}
}
