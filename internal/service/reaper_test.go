package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/data"
	"github.com/target/greeter-api/internal/domain/model"
	"github.com/target/greeter-api/internal/observability/statsd"
	"github.com/target/greeter-api/internal/testutil"
)

func seedJob(t *testing.T, store *data.MemoryJobStore, completedAt *time.Time) string {
	t.Helper()
	job := store.Create(model.JobParams{AccountOwner: "acme"})
	if completedAt == nil {
		return job.ID
	}
	_, err := store.Mutate(job.ID, func(j *model.Job) error {
		j.Status = model.JobStatusCompleted
		at := *completedAt
		j.CompletedAt = &at
		return nil
	})
	require.NoError(t, err)
	return job.ID
}

func TestNewReaperService_RequiresStore(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JobStore is required")
}

func TestReaperService_RunOnce(t *testing.T) {
	start := testutil.TestTime()
	clock := data.NewFixedTimeProvider(start)
	store := data.NewMemoryJobStore(data.MemoryJobStoreOptions{TimeProvider: clock})

	// Created 30h before the sweep and finished 2h before it.
	recentlyFinished := seedJob(t, store, func() *time.Time { at := start.Add(28 * time.Hour); return &at }())
	// Created 30h before the sweep and finished 26h before it.
	longFinished := seedJob(t, store, func() *time.Time { at := start.Add(4 * time.Hour); return &at }())
	// Never finished, created 30h before the sweep.
	stuck := seedJob(t, store, nil)

	clock.AddTime(6 * time.Hour)
	fresh := seedJob(t, store, nil)

	rec := statsd.NewRecorder()
	sweepAt := start.Add(30 * time.Hour)
	reaper, err := NewReaperService(ReaperServiceOptions{
		Store:   store,
		Config:  config.ReaperConfig{Interval: time.Hour, MaxAge: 24 * time.Hour},
		Metrics: rec,
		Now:     func() time.Time { return sweepAt },
	})
	require.NoError(t, err)

	deleted := reaper.RunOnce(context.Background())
	assert.Equal(t, 2, deleted)

	_, ok := store.Get(recentlyFinished)
	assert.True(t, ok, "retention is measured from completion")
	_, ok = store.Get(fresh)
	assert.True(t, ok)
	_, ok = store.Get(longFinished)
	assert.False(t, ok)
	_, ok = store.Get(stuck)
	assert.False(t, ok, "unfinished jobs age from creation")

	cleanups := rec.Counts("reaper.cleanup")
	require.Len(t, cleanups, 1)
	assert.Equal(t, "success", cleanups[0].Tags["result"])
	removed := rec.Counts("reaper.jobs_deleted")
	require.Len(t, removed, 1)
	assert.Equal(t, float64(2), removed[0].Value)
	gauges := rec.Gauges("reaper.last_success_epoch")
	require.Len(t, gauges, 1)
	assert.Equal(t, float64(sweepAt.Unix()), gauges[0].Value)

	assert.Zero(t, reaper.RunOnce(context.Background()))
	noops := rec.Counts("reaper.cleanup")
	require.Len(t, noops, 2)
	assert.Equal(t, "noop", noops[1].Tags["result"])
}

func TestReaperService_RunOnceSkipsCancelledContext(t *testing.T) {
	store := data.NewMemoryJobStore(data.MemoryJobStoreOptions{})
	seedJob(t, store, nil)
	reaper, err := NewReaperService(ReaperServiceOptions{
		Store:  store,
		Config: config.ReaperConfig{Interval: time.Hour, MaxAge: time.Nanosecond},
		Now:    func() time.Time { return time.Now().Add(time.Hour) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, reaper.RunOnce(ctx))
	assert.Len(t, store.List(), 1)
}

func TestReaperService_RunStopsOnCancel(t *testing.T) {
	store := data.NewMemoryJobStore(data.MemoryJobStoreOptions{})
	reaper, err := NewReaperService(ReaperServiceOptions{
		Store:  store,
		Config: config.ReaperConfig{Interval: 10 * time.Millisecond, MaxAge: time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "graceful shutdown returns nil")
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestReaperService_RunReportsDeadline(t *testing.T) {
	store := data.NewMemoryJobStore(data.MemoryJobStoreOptions{})
	reaper, err := NewReaperService(ReaperServiceOptions{
		Store:  store,
		Config: config.ReaperConfig{Interval: 10 * time.Millisecond, MaxAge: time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = reaper.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
