package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
)

// ErrScripted is the default error returned by FakeDriver failure scripts.
var ErrScripted = errors.New("scripted driver failure")

// FakeDriver is a scriptable core.MessagingDriver for service-level tests.
// Zero values mean "always succeed". It is safe for concurrent use and records
// every call so tests can assert on ordering and concurrency.
type FakeDriver struct {
	mu sync.Mutex

	// Followers is returned by DiscoverNewFollowers once DiscoverFailures is exhausted.
	Followers []string
	// DiscoverFailures makes the first N discovery calls fail.
	DiscoverFailures int
	// ConnectFailures makes the first N Connect calls fail.
	ConnectFailures int
	// ReconnectFailures makes the first N Reconnect calls fail; negative fails forever.
	ReconnectFailures int
	// SendResults overrides the outcome per identity. Missing entries succeed.
	SendResults map[string]SendResult
	// AfterSend runs (without the lock held) after each send completes.
	AfterSend func(d *FakeDriver, identity string)
	// BlockSends makes SendMessage wait for ctx to finish for these identities.
	BlockSends map[string]bool
	// StallSends makes SendMessage sleep for the given duration regardless of
	// ctx, like a driver that never observes cancellation.
	StallSends map[string]time.Duration

	connected   bool
	sessionSeq  int
	inFlight    int
	maxInFlight int

	Connects       int
	Reconnects     int
	Discovers      int
	Sends          []string
	Closed         []string
	ConnectedCalls int
}

// SendResult scripts one SendMessage outcome.
type SendResult struct {
	OK  bool
	Err error
}

var _ core.MessagingDriver = (*FakeDriver)(nil)

func (d *FakeDriver) nextSession() core.DriverSession {
	d.sessionSeq++
	d.connected = true
	return core.DriverSession{ID: fmt.Sprintf("session-%d", d.sessionSeq)}
}

// Connect opens a fake session.
func (d *FakeDriver) Connect(_ context.Context, _ model.ResolvedCredentials, _ model.DriverOptions) (core.DriverSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Connects++
	if d.Connects <= d.ConnectFailures {
		return core.DriverSession{}, fmt.Errorf("connect attempt %d: %w", d.Connects, ErrScripted)
	}
	return d.nextSession(), nil
}

// IsConnected reports the scripted liveness.
func (d *FakeDriver) IsConnected(_ context.Context, _ core.DriverSession) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ConnectedCalls++
	return d.connected
}

// Disconnect simulates the remote session dropping.
func (d *FakeDriver) Disconnect() {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
}

// Reconnect re-establishes a session unless scripted to fail.
func (d *FakeDriver) Reconnect(_ context.Context, _ core.DriverSession) (core.DriverSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Reconnects++
	if d.ReconnectFailures < 0 || d.Reconnects <= d.ReconnectFailures {
		return core.DriverSession{}, fmt.Errorf("reconnect attempt %d: %w", d.Reconnects, ErrScripted)
	}
	return d.nextSession(), nil
}

// DiscoverNewFollowers returns Followers after the scripted failures.
func (d *FakeDriver) DiscoverNewFollowers(_ context.Context, _ core.DriverSession, _ string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Discovers++
	if d.Discovers <= d.DiscoverFailures {
		return nil, fmt.Errorf("scan %d: %w", d.Discovers, ErrScripted)
	}
	return append([]string(nil), d.Followers...), nil
}

// SendMessage records the send and returns the scripted outcome.
func (d *FakeDriver) SendMessage(ctx context.Context, _ core.DriverSession, identity, _ string) (bool, error) {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.Sends = append(d.Sends, identity)
	res, scripted := d.SendResults[identity]
	block := d.BlockSends[identity]
	stall := d.StallSends[identity]
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
		if d.AfterSend != nil {
			d.AfterSend(d, identity)
		}
	}()

	if stall > 0 {
		time.Sleep(stall)
		return false, errors.New("send stalled")
	}
	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if !scripted {
		return true, nil
	}
	return res.OK, res.Err
}

// Close records the session teardown.
func (d *FakeDriver) Close(_ context.Context, session core.DriverSession) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = append(d.Closed, session.ID)
	d.connected = false
	return nil
}

// MaxConcurrentSends reports the highest number of overlapping SendMessage calls.
func (d *FakeDriver) MaxConcurrentSends() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

// SentTo returns a copy of the identities passed to SendMessage, in order.
func (d *FakeDriver) SentTo() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Sends...)
}

// ClosedSessions returns a copy of the closed session ids.
func (d *FakeDriver) ClosedSessions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Closed...)
}

// MemoryProcessedStore is an in-memory core.ProcessedRecordStore with
// optional scripted failures.
type MemoryProcessedStore struct {
	mu        sync.Mutex
	records   map[string]bool
	ExistsErr error
	RecordErr error
}

var _ core.ProcessedRecordStore = (*MemoryProcessedStore)(nil)

// NewMemoryProcessedStore creates a store seeded with followers for owner.
func NewMemoryProcessedStore(owner string, followers ...string) *MemoryProcessedStore {
	s := &MemoryProcessedStore{records: map[string]bool{}}
	for _, f := range followers {
		s.records[owner+"/"+f] = true
	}
	return s
}

// Exists reports whether the pair has been recorded.
func (s *MemoryProcessedStore) Exists(_ context.Context, followerID, accountOwner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	return s.records[accountOwner+"/"+followerID], nil
}

// Record stores the pair.
func (s *MemoryProcessedStore) Record(_ context.Context, followerID, accountOwner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.records[accountOwner+"/"+followerID] = true
	return nil
}

// Has is a lock-guarded lookup without error scripting.
func (s *MemoryProcessedStore) Has(followerID, accountOwner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[accountOwner+"/"+followerID]
}
