package data

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
)

// jobEntry pairs a job with the lock that serializes its mutations.
type jobEntry struct {
	mu  sync.Mutex
	job model.Job
}

// MemoryJobStore is an in-process core.JobStore. The index lock is held only
// to look up or insert entries; mutations take the per-job lock.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*jobEntry
	clock TimeProvider
}

// MemoryJobStoreOptions configures a MemoryJobStore.
type MemoryJobStoreOptions struct {
	TimeProvider TimeProvider // optional; defaults to RealTimeProvider
}

var _ core.JobStore = (*MemoryJobStore)(nil)

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore(opts MemoryJobStoreOptions) *MemoryJobStore {
	clock := opts.TimeProvider
	if clock == nil {
		clock = &RealTimeProvider{}
	}
	return &MemoryJobStore{
		jobs:  make(map[string]*jobEntry),
		clock: clock,
	}
}

// Create inserts a queued job and returns a snapshot of it.
func (s *MemoryJobStore) Create(params model.JobParams) model.Job {
	now := s.clock.Now()
	entry := &jobEntry{job: model.Job{
		ID:        uuid.NewString(),
		Status:    model.JobStatusQueued,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	s.mu.Lock()
	s.jobs[entry.job.ID] = entry
	s.mu.Unlock()

	return entry.job.Clone()
}

func (s *MemoryJobStore) entry(id string) (*jobEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	return e, ok
}

// Get returns a snapshot of the job.
func (s *MemoryJobStore) Get(id string) (model.Job, bool) {
	e, ok := s.entry(id)
	if !ok {
		return model.Job{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), true
}

// Mutate applies fn to a working copy and commits it when fn succeeds.
func (s *MemoryJobStore) Mutate(id string, fn func(*model.Job) error) (model.Job, error) {
	e, ok := s.entry(id)
	if !ok {
		return model.Job{}, core.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.job.Clone()
	if err := fn(&working); err != nil {
		return e.job.Clone(), err
	}
	working.ID = e.job.ID
	working.CreatedAt = e.job.CreatedAt
	working.UpdatedAt = s.clock.Now()
	e.job = working
	return e.job.Clone(), nil
}

// List returns snapshots of all jobs, newest first.
func (s *MemoryJobStore) List() []model.Job {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a job, reporting whether it existed.
func (s *MemoryJobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// DeleteOlderThan removes every job whose retention anchor is before cutoff.
func (s *MemoryJobStore) DeleteOlderThan(cutoff time.Time) int {
	s.mu.RLock()
	var expired []string
	for id, e := range s.jobs {
		e.mu.Lock()
		if e.job.RetentionAnchor().Before(cutoff) {
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if s.Delete(id) {
			removed++
		}
	}
	return removed
}

// Len reports how many jobs are held.
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
