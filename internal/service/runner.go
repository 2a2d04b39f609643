package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
)

// closeTimeout bounds session teardown after the job has finished.
const closeTimeout = 30 * time.Second

// WelcomeRunnerOptions groups dependencies for WelcomeRunner.
type WelcomeRunnerOptions struct {
	Jobs      *JobService              // Required: lifecycle controller
	Driver    core.MessagingDriver     // Required: messaging driver
	Resolver  core.CredentialsResolver // Required: loads session cookies
	Discovery *DiscoveryService        // Required: follower discovery
	Delivery  *DeliveryLoop            // Required: delivery loop
	Config    config.DeliveryConfig    // Required: session retry policy
	Logger    *slog.Logger             // Optional: structured logger
}

// WelcomeRunner runs one job end to end: resolve inputs, open a session,
// discover followers, deliver messages. It is the error boundary for the job
// goroutine: every exit path leaves the job terminal and the session closed.
type WelcomeRunner struct {
	jobs      *JobService
	driver    core.MessagingDriver
	resolver  core.CredentialsResolver
	discovery *DiscoveryService
	delivery  *DeliveryLoop
	policy    retryPolicy
	logger    *slog.Logger
	sleep     sleepFunc
}

var _ JobRunner = (*WelcomeRunner)(nil)

// NewWelcomeRunner constructs a WelcomeRunner.
func NewWelcomeRunner(opts WelcomeRunnerOptions) (*WelcomeRunner, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Driver == nil:
		return nil, errors.New("MessagingDriver is required")
	case opts.Resolver == nil:
		return nil, errors.New("CredentialsResolver is required")
	case opts.Discovery == nil:
		return nil, errors.New("DiscoveryService is required")
	case opts.Delivery == nil:
		return nil, errors.New("DeliveryLoop is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WelcomeRunner{
		jobs:      opts.Jobs,
		driver:    opts.Driver,
		resolver:  opts.Resolver,
		discovery: opts.Discovery,
		delivery:  opts.Delivery,
		policy:    linearPolicy(cfg.ConnectMaxAttempts, cfg.ConnectBaseDelay),
		logger:    logger.With("component", "welcome_runner"),
		sleep:     sleepCtx,
	}, nil
}

// Run executes the pipeline for jobID. It never returns an error: failures
// are recorded on the job.
func (r *WelcomeRunner) Run(ctx context.Context, jobID string) {
	var session core.DriverSession

	defer func() {
		if session.ID != "" {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			if err := r.driver.Close(cctx, session); err != nil {
				r.logger.WarnContext(cctx, "failed to close driver session", "job_id", jobID, "session_id", session.ID, "error", err)
			}
			cancel()
		}
	}()

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "job panicked", "job_id", jobID, "panic", p, "stack", string(debug.Stack()))
			_ = r.jobs.Fail(context.WithoutCancel(ctx), jobID, fmt.Sprintf("panic: %v", p))
		}
	}()

	if err := r.run(ctx, jobID, &session); err != nil {
		_ = r.jobs.Fail(context.WithoutCancel(ctx), jobID, err.Error())
	}
}

func (r *WelcomeRunner) run(ctx context.Context, jobID string, session *core.DriverSession) error {
	job, ok := r.jobs.store.Get(jobID)
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, core.ErrJobNotFound)
	}
	params := job.Params
	log := r.logger.With("job_id", jobID, "account_owner", params.AccountOwner)

	step := func(next model.JobStatus) error {
		if err := r.checkpoint(ctx, jobID); err != nil {
			return err
		}
		return r.jobs.Transition(ctx, jobID, next)
	}

	if err := step(model.JobStatusRunning); err != nil {
		return err
	}
	if err := step(model.JobStatusInitializing); err != nil {
		return err
	}
	creds, err := r.resolver.Resolve(ctx, params.Credentials)
	if err != nil {
		return fmt.Errorf("load session cookies: %w", err)
	}
	tmpl, err := ParseMessageTemplate(params.MessageTemplate)
	if err != nil {
		return err
	}

	if err := step(model.JobStatusInitializingBrowser); err != nil {
		return err
	}
	opened, err := r.connect(ctx, creds, params.Driver, log)
	if err != nil {
		if ctx.Err() != nil {
			return interruptCause(ctx)
		}
		return err
	}
	*session = opened

	if err := step(model.JobStatusCheckingNotifications); err != nil {
		return err
	}
	candidates, warnings := r.discovery.Discover(ctx, *session, params.AccountOwner)
	for _, w := range warnings {
		r.jobs.Warn(ctx, jobID, w)
	}
	log.InfoContext(ctx, "followers discovered", "candidates", len(candidates))

	if err := step(model.JobStatusSendingMessages); err != nil {
		return err
	}
	if err := r.jobs.SetTotal(jobID, len(candidates)); err != nil {
		return err
	}
	if len(candidates) == 0 {
		return r.jobs.Complete(ctx, jobID, "no followers to process")
	}

	last, err := r.delivery.Run(ctx, DeliveryRun{
		JobID:      jobID,
		Owner:      params.AccountOwner,
		Session:    *session,
		Candidates: candidates,
		Template:   tmpl,
	})
	*session = last
	if err != nil {
		return err
	}

	done, _ := r.jobs.store.Get(jobID)
	return r.jobs.Complete(ctx, jobID, fmt.Sprintf(
		"processed %d followers: %d sent, %d failed",
		len(candidates), len(done.ProcessedUsers), len(done.FailedUsers),
	))
}

func (r *WelcomeRunner) checkpoint(ctx context.Context, jobID string) error {
	if r.jobs.CancelRequested(jobID) {
		return ErrJobCancelled
	}
	if ctx.Err() != nil {
		return interruptCause(ctx)
	}
	return nil
}

func (r *WelcomeRunner) connect(
	ctx context.Context,
	creds model.ResolvedCredentials,
	opts model.DriverOptions,
	log *slog.Logger,
) (core.DriverSession, error) {
	var session core.DriverSession
	err := r.policy.run(ctx, r.sleep, func(attempt int) error {
		s, err := r.driver.Connect(ctx, creds, opts)
		if err != nil {
			log.WarnContext(ctx, "session connect failed", "attempt", attempt, "error", err)
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return core.DriverSession{}, fmt.Errorf("could not establish driver session after %d attempts: %w", r.policy.attempts, err)
	}
	log.InfoContext(ctx, "driver session established", "session_id", session.ID)
	return session, nil
}
