package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/data"
	"github.com/target/greeter-api/internal/domain/model"
	"github.com/target/greeter-api/internal/observability/statsd"
	"github.com/target/greeter-api/internal/testutil"
)

// stubResolver accepts any credentials and returns a fixed cookie set.
type stubResolver struct{}

func (stubResolver) Resolve(context.Context, model.SessionCredentials) (model.ResolvedCredentials, error) {
	return model.ResolvedCredentials{Cookies: []model.Cookie{{Name: "auth_token", Value: "v", Domain: ".x.com"}}}, nil
}

// sleepRecorder replaces real waits and remembers every requested delay.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

func testDeliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		MessageTimeout:     2 * time.Minute,
		PacingMin:          20 * time.Second,
		PacingMax:          60 * time.Second,
		ConnectMaxAttempts: 5,
		ConnectBaseDelay:   5 * time.Second,
		DiscoveryAttempts:  3,
		DiscoveryBackoff:   10 * time.Second,
		DefaultTemplate:    config.DefaultMessageTemplate,
	}
}

type harness struct {
	jobs      *JobService
	store     *data.MemoryJobStore
	driver    *testutil.FakeDriver
	processed *testutil.MemoryProcessedStore
	runner    *WelcomeRunner
	discovery *DiscoveryService
	delivery  *DeliveryLoop
	sleeps    *sleepRecorder
	metrics   *statsd.Recorder
	cancelAll context.CancelFunc
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	delivery  config.DeliveryConfig
	processed *testutil.MemoryProcessedStore
	noStore   bool
	driver    core.MessagingDriver
}

func withDelivery(fn func(*config.DeliveryConfig)) harnessOption {
	return func(c *harnessConfig) { fn(&c.delivery) }
}

func withProcessed(p *testutil.MemoryProcessedStore) harnessOption {
	return func(c *harnessConfig) { c.processed = p }
}

func withoutStore() harnessOption {
	return func(c *harnessConfig) { c.noStore = true }
}

func withDriver(d core.MessagingDriver) harnessOption {
	return func(c *harnessConfig) { c.driver = d }
}

func newHarness(t *testing.T, driver *testutil.FakeDriver, opts ...harnessOption) *harness {
	t.Helper()

	hc := harnessConfig{delivery: testDeliveryConfig()}
	for _, o := range opts {
		o(&hc)
	}
	if hc.processed == nil {
		hc.processed = testutil.NewMemoryProcessedStore("acme")
	}
	var ledger core.ProcessedRecordStore = hc.processed
	if hc.noStore {
		ledger = nil
	}
	var drv core.MessagingDriver = driver
	if hc.driver != nil {
		drv = hc.driver
	}

	base, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := data.NewMemoryJobStore(data.MemoryJobStoreOptions{})
	rec := statsd.NewRecorder()
	jobs := MustNewJobService(JobServiceOptions{
		Store:           store,
		Resolver:        stubResolver{},
		DefaultTemplate: hc.delivery.DefaultTemplate,
		BaseContext:     base,
		Metrics:         rec,
	})

	sleeps := &sleepRecorder{}

	discovery, err := NewDiscoveryService(DiscoveryServiceOptions{
		Driver:   drv,
		Store:    ledger,
		Attempts: hc.delivery.DiscoveryAttempts,
		Backoff:  hc.delivery.DiscoveryBackoff,
	})
	require.NoError(t, err)
	discovery.sleep = sleeps.sleep

	delivery, err := NewDeliveryLoop(DeliveryLoopOptions{
		Jobs:    jobs,
		Driver:  drv,
		Store:   ledger,
		Config:  hc.delivery,
		Metrics: rec,
	})
	require.NoError(t, err)
	delivery.sleep = sleeps.sleep
	delivery.rand = func() float64 { return 0.5 }

	runner, err := NewWelcomeRunner(WelcomeRunnerOptions{
		Jobs:      jobs,
		Driver:    drv,
		Resolver:  stubResolver{},
		Discovery: discovery,
		Delivery:  delivery,
		Config:    hc.delivery,
	})
	require.NoError(t, err)
	runner.sleep = sleeps.sleep
	jobs.BindRunner(runner)

	return &harness{
		jobs:      jobs,
		store:     store,
		driver:    driver,
		processed: hc.processed,
		runner:    runner,
		discovery: discovery,
		delivery:  delivery,
		sleeps:    sleeps,
		metrics:   rec,
		cancelAll: cancel,
	}
}

func welcomeRequest() *model.CreateJobRequest {
	return &model.CreateJobRequest{
		AccountOwner: "@acme",
		Credentials:  model.CredentialsFromBytes([]byte(`[{"name":"auth_token","value":"v","domain":".x.com"}]`)),
	}
}

// runSync submits a job and waits for it to reach a terminal state.
func (h *harness) runSync(t *testing.T) model.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := h.jobs.RunSync(ctx, welcomeRequest())
	require.NoError(t, err)
	require.True(t, job.Status.IsTerminal(), "job should be terminal, got %s", job.Status)
	require.True(t, (job.Result != nil) != (job.Error != nil), "terminal job must carry exactly one of result and error")
	return job
}

// transitions returns the "from->to" pairs recorded by the metrics sink, in order.
func (h *harness) transitions() []string {
	var out []string
	for _, s := range h.metrics.Counts("job.transition") {
		out = append(out, s.Tags["from"]+"->"+s.Tags["to"])
	}
	return out
}
