// Package failurenotifier fans failed welcome jobs out to alerting sinks.
package failurenotifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/greeter-api/internal/observability/notify"
)

// Failure causes with their own routing. They mirror the causes the job
// service records for caller cancellation and process shutdown.
const (
	causeCancelled = "cancelled"
	causeShutdown  = "service shutting down"
)

const defaultDispatchTimeout = 10 * time.Second

// SinkRegistration names a sink for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds one dispatch across all sinks. Defaults to 10s.
	Timeout time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
}

// NewService constructs a failure notifier. Registrations without a sink are
// ignored and unnamed sinks are numbered.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for i, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = fmt.Sprintf("sink-%d", i)
		}
		sinks = append(sinks, reg)
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		timeout: timeout,
	}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// NotifyJobFailure delivers payload to every sink concurrently and returns
// once all have answered or the dispatch timeout has passed. Cancelled jobs
// are not reported, and jobs failed by shutdown are sent as warnings.
// Sink errors are logged, never returned.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if !s.Enabled() {
		return
	}
	switch payload.Error {
	case causeCancelled:
		s.logger.DebugContext(ctx, "cancelled job not reported", "job_id", payload.JobID)
		return
	case causeShutdown:
		payload.Severity = notify.SeverityWarning
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var g errgroup.Group
	for _, reg := range s.sinks {
		g.Go(func() error {
			start := time.Now()
			if err := reg.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notification not delivered",
					"sink", reg.Name,
					"job_id", payload.JobID,
					"account_owner", payload.AccountOwner,
					"elapsed", time.Since(start),
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
