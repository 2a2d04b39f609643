package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/observability/metrics"
	"github.com/target/greeter-api/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store   core.JobStore       // Required: job store to sweep
	Config  config.ReaperConfig // Required: reaper configuration
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink (StatsD-compatible)
	Now     func() time.Time    // Optional: clock
}

// ReaperService deletes jobs whose retention window has passed. Finished
// jobs are measured from completion, unfinished ones from creation.
type ReaperService struct {
	store   core.JobStore
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", cfg.Interval,
			"max_age", cfg.MaxAge,
		)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ReaperService{
		store:   opts.Store,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	_ = sleepCtx(ctx, jitter)
}

// RunOnce performs a single sweep and returns the number of deleted jobs.
func (s *ReaperService) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	begin := time.Now()
	cutoff := s.now().Add(-s.config.MaxAge)
	deleted := s.store.DeleteOlderThan(cutoff)

	if deleted > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired jobs",
			"count", deleted,
			"max_age", s.config.MaxAge,
		)
	}
	s.emitCleanupMetrics(deleted, time.Since(begin))
	return deleted
}

func (s *ReaperService) emitCleanupMetrics(deleted int, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if deleted == 0 {
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if deleted > 0 {
		s.metrics.Count("reaper.jobs_deleted", int64(deleted), metrics.CloneTags(tags))
	}
	s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
}
