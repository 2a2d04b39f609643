package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
	"github.com/target/greeter-api/internal/observability/metrics"
	"github.com/target/greeter-api/internal/observability/statsd"
)

// ErrSendTimeout marks a send abandoned after the message timeout.
var ErrSendTimeout = errors.New("message send timed out")

// errSendStalled marks a timed-out send whose driver call kept running past
// the grace period. The session is treated as lost afterwards.
var errSendStalled = errors.New("driver ignored send cancellation")

// defaultAbandonGrace is how long a timed-out send may take to observe its
// cancelled context before it is reported as stalled.
const defaultAbandonGrace = 5 * time.Second

// connectivitySignatures are substrings of driver errors that mean the
// session itself is gone rather than this one send.
var connectivitySignatures = []string{
	"connection reset",
	"session closed",
	"target closed",
	"socket hang up",
	"econnreset",
	"epipe",
	"broken pipe",
	"websocket: close",
}

// DeliveryLoopOptions groups dependencies for DeliveryLoop.
type DeliveryLoopOptions struct {
	Jobs    *JobService               // Required: lifecycle controller
	Driver  core.MessagingDriver      // Required: messaging driver
	Store   core.ProcessedRecordStore // Optional: idempotency ledger
	Config  config.DeliveryConfig     // Required: timeouts, pacing and reconnect policy
	Logger  *slog.Logger              // Optional: structured logger
	Metrics statsd.Sink               // Optional: metrics sink
}

// DeliveryLoop sends welcome messages to candidates one at a time.
type DeliveryLoop struct {
	jobs    *JobService
	driver  core.MessagingDriver
	store   core.ProcessedRecordStore
	cfg     config.DeliveryConfig
	policy  retryPolicy
	logger  *slog.Logger
	metrics statsd.Sink
	sleep   sleepFunc
	rand    func() float64
	grace   time.Duration
}

// NewDeliveryLoop constructs a DeliveryLoop.
func NewDeliveryLoop(opts DeliveryLoopOptions) (*DeliveryLoop, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Driver == nil {
		return nil, errors.New("MessagingDriver is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DeliveryLoop{
		jobs:    opts.Jobs,
		driver:  opts.Driver,
		store:   opts.Store,
		cfg:     cfg,
		policy:  linearPolicy(cfg.ConnectMaxAttempts, cfg.ConnectBaseDelay),
		logger:  logger.With("component", "delivery_loop"),
		metrics: opts.Metrics,
		sleep:   sleepCtx,
		rand:    rand.Float64,
		grace:   defaultAbandonGrace,
	}, nil
}

// DeliveryRun is one invocation of the loop for a job.
type DeliveryRun struct {
	JobID      string
	Owner      string
	Session    core.DriverSession
	Candidates []string
	Template   *MessageTemplate
}

// loopState is the per-run mutable state.
type loopState struct {
	session      core.DriverSession
	disconnected bool
	halvePacing  bool
	recordWarned bool
}

// Run consumes every candidate in order. It returns the session in use when
// it stopped, which may differ from run.Session after a reconnect, and a
// non-nil error when the job must fail. On success the caller completes the job.
func (l *DeliveryLoop) Run(ctx context.Context, run DeliveryRun) (core.DriverSession, error) {
	st := &loopState{session: run.Session}
	total := len(run.Candidates)
	log := l.logger.With("job_id", run.JobID, "account_owner", run.Owner)

	for i := 0; i < total; i++ {
		if err := l.interrupted(ctx, run.JobID); err != nil {
			return st.session, err
		}

		identity := run.Candidates[i]
		if st.disconnected || !l.driver.IsConnected(ctx, st.session) {
			if err := l.reconnect(ctx, run.JobID, st, log); err != nil {
				if ctx.Err() != nil {
					return st.session, interruptCause(ctx)
				}
				return st.session, fmt.Errorf(
					"reconnection failed after %d attempts: %d of %d candidates processed, %d remaining",
					l.policy.attempts, i, total, total-i,
				)
			}
		}

		l.deliver(ctx, run, st, identity, log)

		if i < total-1 {
			_ = l.pace(ctx, st)
		}
	}
	return st.session, nil
}

func (l *DeliveryLoop) interrupted(ctx context.Context, jobID string) error {
	if l.jobs.CancelRequested(jobID) {
		return ErrJobCancelled
	}
	if ctx.Err() != nil {
		return interruptCause(ctx)
	}
	return nil
}

func (l *DeliveryLoop) reconnect(ctx context.Context, jobID string, st *loopState, log *slog.Logger) error {
	if err := l.jobs.Transition(ctx, jobID, model.JobStatusReconnecting); err != nil {
		return err
	}
	log.WarnContext(ctx, "driver session lost; reconnecting", "session_id", st.session.ID)

	err := l.policy.run(ctx, l.sleep, func(attempt int) error {
		next, err := l.driver.Reconnect(ctx, st.session)
		if err != nil {
			log.WarnContext(ctx, "reconnect attempt failed", "attempt", attempt, "error", err)
			return err
		}
		st.session = next
		return nil
	})
	if err != nil {
		return err
	}

	st.disconnected = false
	st.halvePacing = true
	log.InfoContext(ctx, "driver session re-established", "session_id", st.session.ID)
	return l.jobs.Transition(ctx, jobID, model.JobStatusSendingMessages)
}

func (l *DeliveryLoop) deliver(ctx context.Context, run DeliveryRun, st *loopState, identity string, log *slog.Logger) {
	start := time.Now()
	text, err := run.Template.Render(identity, run.Owner)
	ok := false
	if err == nil {
		ok, err = l.send(ctx, st.session, identity, text)
	}
	elapsed := time.Since(start)

	if ok && err == nil {
		l.record(ctx, run, st, identity, log)
		if rerr := l.jobs.RecordSent(run.JobID, identity); rerr != nil {
			log.WarnContext(ctx, "failed to record sent outcome", "username", identity, "error", rerr)
		}
		metrics.EmitDelivery(l.metrics, metrics.Delivery{Outcome: string(model.OutcomeSent), Duration: elapsed})
		log.InfoContext(ctx, "welcome message sent", "username", identity)
		return
	}

	detail := "message was not sent"
	if err != nil {
		detail = err.Error()
		if isConnectivityError(err) || errors.Is(err, errSendStalled) {
			st.disconnected = true
		}
	}
	if !l.cfg.RetryFailedOnNextRun {
		l.record(ctx, run, st, identity, log)
	}
	if rerr := l.jobs.RecordFailed(run.JobID, identity, detail); rerr != nil {
		log.WarnContext(ctx, "failed to record failed outcome", "username", identity, "error", rerr)
	}
	metrics.EmitDelivery(l.metrics, metrics.Delivery{Outcome: string(model.OutcomeFailed), Duration: elapsed, Err: err})
	log.WarnContext(ctx, "welcome message failed", "username", identity, "detail", detail, "disconnected", st.disconnected)
}

// record writes the ledger entry. Failures are logged and surfaced once as a
// job warning; they never stop the loop.
func (l *DeliveryLoop) record(ctx context.Context, run DeliveryRun, st *loopState, identity string, log *slog.Logger) {
	if l.store == nil {
		return
	}
	err := l.store.Record(context.WithoutCancel(ctx), identity, run.Owner)
	if err == nil {
		return
	}
	log.ErrorContext(ctx, "failed to record processed follower", "username", identity, "error", err)
	if !st.recordWarned {
		st.recordWarned = true
		l.jobs.Warn(ctx, run.JobID, "failed to record processed followers: "+err.Error())
	}
}

// send races the driver call against the message timeout. The call runs on
// a context detached from job cancellation so an accepted message is never
// cut off halfway. send never returns while the driver call is still running,
// so at most one send per job is in flight.
func (l *DeliveryLoop) send(ctx context.Context, session core.DriverSession, identity, text string) (bool, error) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.MessageTimeout)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ok, err := l.driver.SendMessage(sendCtx, session, identity, text)
		ch <- result{ok: ok, err: err}
	}()

	select {
	case r := <-ch:
		return r.ok, r.err
	case <-sendCtx.Done():
	}

	cancel()
	timeoutErr := fmt.Errorf("%w after %s", ErrSendTimeout, l.cfg.MessageTimeout)
	timer := time.NewTimer(l.grace)
	defer timer.Stop()
	select {
	case <-ch:
		return false, timeoutErr
	case <-timer.C:
	}

	l.logger.WarnContext(ctx, "driver ignored send cancellation; waiting for it to return", "username", identity)
	<-ch
	return false, fmt.Errorf("%w: %w", errSendStalled, timeoutErr)
}

// pace waits a random delay in [PacingMin, PacingMax]; the range is halved
// for the first wait after a reconnect.
func (l *DeliveryLoop) pace(ctx context.Context, st *loopState) error {
	lo, hi := l.cfg.PacingMin, l.cfg.PacingMax
	if st.halvePacing {
		lo, hi = lo/2, hi/2
		st.halvePacing = false
	}
	d := lo + time.Duration(l.rand()*float64(hi-lo))
	return l.sleep(ctx, d)
}

func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrSessionClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range connectivitySignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
