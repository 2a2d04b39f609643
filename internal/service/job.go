package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
	apperrors "github.com/target/greeter-api/internal/errors"
	obserrors "github.com/target/greeter-api/internal/observability/errors"
	"github.com/target/greeter-api/internal/observability/metrics"
	"github.com/target/greeter-api/internal/observability/notify"
	"github.com/target/greeter-api/internal/observability/statsd"
	"github.com/target/greeter-api/internal/service/failurenotifier"
)

var (
	// ErrJobCancelled is the cancellation cause for caller-initiated cancels.
	ErrJobCancelled = errors.New("cancelled")
	// ErrShuttingDown is reported for jobs interrupted by process shutdown.
	ErrShuttingDown = errors.New("service shutting down")
	// ErrJobTerminal is returned when a mutation targets a finished job.
	ErrJobTerminal = errors.New("job already finished")
)

// JobRunner executes the welcome pipeline for a created job.
type JobRunner interface {
	Run(ctx context.Context, jobID string)
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store           core.JobStore            // Required: job store
	Resolver        core.CredentialsResolver // Required: validates credentials at submission
	DefaultTemplate string                   // Required: template used when a request omits one
	DefaultHeadless bool                     // Optional: driver headless flag when a request omits it
	Runner          JobRunner                // Optional: may be bound later with BindRunner
	BaseContext     context.Context          // Optional: parent of every job context (process lifetime)
	Logger          *slog.Logger             // Optional: structured logger
	Metrics         statsd.Sink              // Optional: metrics sink
	FailureNotifier *failurenotifier.Service // Optional: failure notification fan-out
	Now             func() time.Time         // Optional: clock for outcome timestamps
}

// runHandle tracks one in-flight job goroutine.
type runHandle struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// JobService is the job lifecycle controller. It owns submission, status
// transitions, progress bookkeeping and cancellation. Every mutation goes
// through the store so callers only ever observe consistent snapshots.
type JobService struct {
	store           core.JobStore
	resolver        core.CredentialsResolver
	defaultTemplate string
	defaultHeadless bool
	baseCtx         context.Context
	logger          *slog.Logger
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
	now             func() time.Time

	mu      sync.Mutex
	runner  JobRunner
	running map[string]*runHandle
	wg      sync.WaitGroup
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("CredentialsResolver is required")
	}
	if _, err := ParseMessageTemplate(opts.DefaultTemplate); err != nil {
		return nil, fmt.Errorf("default template: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &JobService{
		store:           opts.Store,
		resolver:        opts.Resolver,
		defaultTemplate: opts.DefaultTemplate,
		defaultHeadless: opts.DefaultHeadless,
		baseCtx:         base,
		logger:          logger.With("component", "job_service"),
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
		now:             now,
		runner:          opts.Runner,
		running:         make(map[string]*runHandle),
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// BindRunner sets the pipeline that submitted jobs run on.
func (s *JobService) BindRunner(r JobRunner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

// prepare validates a request and turns it into job parameters. Any error is
// a validation error; no job exists yet.
func (s *JobService) prepare(ctx context.Context, req *model.CreateJobRequest) (model.JobParams, error) {
	if req == nil {
		return model.JobParams{}, apperrors.Validation("request body is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return model.JobParams{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request")
	}

	tmpl := req.MessageTemplate
	if tmpl == "" {
		tmpl = s.defaultTemplate
	}
	parsed, err := ParseMessageTemplate(tmpl)
	if err != nil {
		return model.JobParams{}, err
	}

	if _, err := s.resolver.Resolve(ctx, req.Credentials); err != nil {
		if apperrors.IsValidation(err) {
			return model.JobParams{}, err
		}
		return model.JobParams{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "resolve session cookies")
	}

	headless := s.defaultHeadless
	if req.Headless != nil {
		headless = *req.Headless
	}

	return model.JobParams{
		AccountOwner:    req.AccountOwner,
		MessageTemplate: parsed.Source(),
		Driver:          model.DriverOptions{Headless: headless, Proxy: req.Proxy},
		Credentials:     req.Credentials,
	}, nil
}

// Submit validates the request, creates a queued job and starts its pipeline
// in the background. It returns as soon as the job exists.
func (s *JobService) Submit(ctx context.Context, req *model.CreateJobRequest) (model.Job, error) {
	params, err := s.prepare(ctx, req)
	if err != nil {
		return model.Job{}, err
	}
	job := s.store.Create(params)
	s.logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "account_owner", params.AccountOwner)

	if _, err := s.launch(job.ID); err != nil {
		return job, err
	}
	return job, nil
}

// RunSync runs the pipeline for a new job and waits for it to finish. When
// ctx ends first the job keeps running and its current snapshot is returned
// together with ctx's error.
func (s *JobService) RunSync(ctx context.Context, req *model.CreateJobRequest) (model.Job, error) {
	params, err := s.prepare(ctx, req)
	if err != nil {
		return model.Job{}, err
	}
	job := s.store.Create(params)
	s.logger.InfoContext(ctx, "job started synchronously", "job_id", job.ID, "account_owner", params.AccountOwner)

	done, err := s.launch(job.ID)
	if err != nil {
		return job, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		snap, _ := s.store.Get(job.ID)
		return snap, ctx.Err()
	}

	snap, ok := s.store.Get(job.ID)
	if !ok {
		return model.Job{}, apperrors.NotFoundf("job %s not found", job.ID)
	}
	return snap, nil
}

func (s *JobService) launch(jobID string) (<-chan struct{}, error) {
	s.mu.Lock()
	runner := s.runner
	if runner == nil {
		s.mu.Unlock()
		_ = s.Fail(s.baseCtx, jobID, "no job runner configured")
		return nil, apperrors.Internal("no job runner configured")
	}
	ctx, cancel := context.WithCancelCause(s.baseCtx)
	h := &runHandle{cancel: cancel, done: make(chan struct{})}
	s.running[jobID] = h
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(h.done)
		defer func() {
			s.mu.Lock()
			delete(s.running, jobID)
			s.mu.Unlock()
			cancel(nil)
		}()
		runner.Run(ctx, jobID)
	}()
	return h.done, nil
}

// Wait blocks until every in-flight job has returned or ctx ends.
func (s *JobService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cooperative cancellation. The job ends failed with
// "cancelled" at its next iteration boundary.
func (s *JobService) Cancel(ctx context.Context, id string) (model.Job, error) {
	job, err := s.store.Mutate(id, func(j *model.Job) error {
		if j.Status.IsTerminal() {
			return ErrJobTerminal
		}
		j.CancelRequested = true
		return nil
	})
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		return model.Job{}, apperrors.NotFoundf("job %s not found", id)
	case errors.Is(err, ErrJobTerminal):
		return job, apperrors.Conflict("job already finished")
	case err != nil:
		return model.Job{}, err
	}

	s.mu.Lock()
	h := s.running[id]
	s.mu.Unlock()
	if h != nil {
		h.cancel(ErrJobCancelled)
	}

	s.logger.InfoContext(ctx, "job cancellation requested", "job_id", id, "status", job.Status)
	return job, nil
}

// Get returns a snapshot of the job.
func (s *JobService) Get(id string) (model.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return model.Job{}, apperrors.NotFoundf("job %s not found", id)
	}
	return job, nil
}

// Status returns the caller-facing status projection.
func (s *JobService) Status(id string) (model.JobStatusResponse, error) {
	job, err := s.Get(id)
	if err != nil {
		return model.JobStatusResponse{}, err
	}
	return job.StatusResponse(), nil
}

// List returns job snapshots, newest first.
func (s *JobService) List() []model.Job {
	return s.store.List()
}

// Stats counts jobs per status.
func (s *JobService) Stats() model.JobStats {
	stats := model.JobStats{}
	for _, j := range s.store.List() {
		stats[j.Status]++
	}
	return stats
}

// CancelRequested reports whether a cancel was requested for the job.
func (s *JobService) CancelRequested(id string) bool {
	job, ok := s.store.Get(id)
	return ok && job.CancelRequested
}

// Transition moves a job to next. Illegal moves return model.ErrInvalidTransition.
func (s *JobService) Transition(ctx context.Context, id string, next model.JobStatus) error {
	var from model.JobStatus
	job, err := s.store.Mutate(id, func(j *model.Job) error {
		from = j.Status
		if !j.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, j.Status, next)
		}
		j.Status = next
		if next.IsTerminal() {
			at := s.now()
			j.CompletedAt = &at
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "job transition rejected", "job_id", id, "to", next, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "job transitioned", "job_id", id, "from", from, "to", next)
	s.emitTransition(from, job, nil)
	return nil
}

// Warn appends a non-fatal annotation to the job.
func (s *JobService) Warn(ctx context.Context, id, warning string) {
	warning = strings.TrimSpace(warning)
	if warning == "" {
		return
	}
	if _, err := s.store.Mutate(id, func(j *model.Job) error {
		j.Warnings = append(j.Warnings, warning)
		return nil
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to annotate job", "job_id", id, "error", err)
		return
	}
	s.logger.WarnContext(ctx, "job warning", "job_id", id, "warning", warning)
}

// SetTotal records the number of candidates the delivery loop will consume.
func (s *JobService) SetTotal(id string, total int) error {
	_, err := s.store.Mutate(id, func(j *model.Job) error {
		if j.Status.IsTerminal() {
			return ErrJobTerminal
		}
		j.Progress.Total = total
		return nil
	})
	return err
}

// RecordSent appends a sent outcome and advances progress.
func (s *JobService) RecordSent(id, identity string) error {
	return s.recordOutcome(id, model.UserOutcome{Identity: identity, Status: model.OutcomeSent})
}

// RecordFailed appends a failed outcome and advances progress.
func (s *JobService) RecordFailed(id, identity, detail string) error {
	return s.recordOutcome(id, model.UserOutcome{Identity: identity, Status: model.OutcomeFailed, Detail: detail})
}

func (s *JobService) recordOutcome(id string, outcome model.UserOutcome) error {
	outcome.Timestamp = s.now()
	_, err := s.store.Mutate(id, func(j *model.Job) error {
		if j.Status.IsTerminal() {
			return ErrJobTerminal
		}
		if outcome.Status == model.OutcomeSent {
			j.ProcessedUsers = append(j.ProcessedUsers, outcome)
		} else {
			j.FailedUsers = append(j.FailedUsers, outcome)
		}
		j.Progress.Processed++
		if j.Progress.Processed > j.Progress.Total {
			j.Progress.Total = j.Progress.Processed
		}
		return nil
	})
	return err
}

// Complete finishes the job successfully with a summary.
func (s *JobService) Complete(ctx context.Context, id, message string) error {
	var from model.JobStatus
	job, err := s.store.Mutate(id, func(j *model.Job) error {
		from = j.Status
		if !j.Status.CanTransitionTo(model.JobStatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, j.Status, model.JobStatusCompleted)
		}
		at := s.now()
		j.Status = model.JobStatusCompleted
		j.CompletedAt = &at
		j.Result = summarize(j, message)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "job completion rejected", "job_id", id, "error", err)
		return err
	}

	s.logger.InfoContext(ctx, "job completed",
		"job_id", id,
		"sent", job.Result.Sent,
		"failed", job.Result.Failed,
		"total", job.Result.Total,
	)
	s.emitTransition(from, job, nil)
	return nil
}

// Fail finishes the job as failed with cause as its error. Partial progress
// stays in Progress and the user lists; Result is never set on this path.
// Failing a terminal job is a no-op error.
func (s *JobService) Fail(ctx context.Context, id, cause string) error {
	var from model.JobStatus
	job, err := s.store.Mutate(id, func(j *model.Job) error {
		from = j.Status
		if !j.Status.CanTransitionTo(model.JobStatusFailed) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, j.Status, model.JobStatusFailed)
		}
		at := s.now()
		j.Status = model.JobStatusFailed
		j.CompletedAt = &at
		j.Error = &cause
		j.Result = nil
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "job failure rejected", "job_id", id, "error", err)
		return err
	}

	s.logger.ErrorContext(ctx, "job failed", "job_id", id, "stage", from, "error", cause)
	failErr := errors.New(cause)
	s.emitTransition(from, job, failErr)
	s.notifyFailure(ctx, from, job, failErr)
	return nil
}

func summarize(j *model.Job, message string) *model.JobResult {
	return &model.JobResult{
		Total:   j.Progress.Total,
		Sent:    len(j.ProcessedUsers),
		Failed:  len(j.FailedUsers),
		Message: message,
	}
}

func (s *JobService) emitTransition(from model.JobStatus, job model.Job, err error) {
	in := metrics.JobTransition{
		From:   string(from),
		To:     string(job.Status),
		Result: metrics.ResultSuccess,
		Err:    err,
	}
	if job.Status == model.JobStatusFailed {
		in.Result = metrics.ResultError
	}
	if job.CompletedAt != nil {
		in.Duration = job.CompletedAt.Sub(job.CreatedAt)
	}
	metrics.EmitJobTransition(s.metrics, in)
}

func (s *JobService) notifyFailure(ctx context.Context, stage model.JobStatus, job model.Job, err error) {
	if s.failureNotifier == nil || !s.failureNotifier.Enabled() {
		return
	}
	payload := notify.JobFailurePayload{
		JobID:        job.ID,
		AccountOwner: job.Params.AccountOwner,
		Stage:        string(stage),
		Processed:    job.Progress.Processed,
		Total:        job.Progress.Total,
		Error:        err.Error(),
		ErrorClass:   obserrors.Classify(err),
		OccurredAt:   s.now(),
	}
	payload.Metadata = map[string]string{
		"sent":   fmt.Sprint(len(job.ProcessedUsers)),
		"failed": fmt.Sprint(len(job.FailedUsers)),
	}
	// Sinks outlive the job's context.
	nctx := context.WithoutCancel(ctx)
	go s.failureNotifier.NotifyJobFailure(nctx, payload)
}

// interruptCause maps a done job context to the failure cause recorded on the job.
func interruptCause(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), ErrJobCancelled) {
		return ErrJobCancelled
	}
	return ErrShuttingDown
}
