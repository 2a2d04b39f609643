package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
	"github.com/target/greeter-api/internal/testutil"
)

func identities(outcomes []model.UserOutcome) []string {
	out := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Identity)
	}
	return out
}

func TestWelcome_AllCandidatesSucceed(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice", "bob", "carol"}}
	h := newHarness(t, driver)

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, []string{"alice", "bob", "carol"}, identities(job.ProcessedUsers))
	assert.Empty(t, job.FailedUsers)
	assert.Equal(t, model.JobProgress{Total: 3, Processed: 3}, job.Progress)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.Sent)
	assert.NotNil(t, job.CompletedAt)

	for _, f := range []string{"alice", "bob", "carol"} {
		assert.True(t, h.processed.Has(f, "acme"), "%s should be recorded", f)
	}
	assert.Equal(t, []time.Duration{40 * time.Second, 40 * time.Second}, h.sleeps.Calls(),
		"pacing runs between candidates only")
	assert.Equal(t, []string{"session-1"}, driver.ClosedSessions())
	assert.Equal(t, []string{
		"queued->running",
		"running->initializing",
		"initializing->initializing_browser",
		"initializing_browser->checking_notifications",
		"checking_notifications->sending_messages",
		"sending_messages->completed",
	}, h.transitions())
}

func TestWelcome_SoftFailureIsRecordedAndLoopContinues(t *testing.T) {
	driver := &testutil.FakeDriver{
		Followers:   []string{"alice", "bob", "carol"},
		SendResults: map[string]testutil.SendResult{"bob": {OK: false}},
	}
	h := newHarness(t, driver)

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, []string{"alice", "carol"}, identities(job.ProcessedUsers))
	require.Len(t, job.FailedUsers, 1)
	assert.Equal(t, "bob", job.FailedUsers[0].Identity)
	assert.Equal(t, model.OutcomeFailed, job.FailedUsers[0].Status)
	assert.NotEmpty(t, job.FailedUsers[0].Detail)
	assert.Equal(t, 3, job.Progress.Processed)
	assert.True(t, h.processed.Has("bob", "acme"), "failed attempts consume the candidate by default")
}

func TestWelcome_ReconnectRetriesSameCandidate(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice", "bob", "carol"}}
	driver.AfterSend = func(d *testutil.FakeDriver, identity string) {
		if identity == "alice" {
			d.Disconnect()
		}
	}
	h := newHarness(t, driver)

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, []string{"alice", "bob", "carol"}, driver.SentTo())
	assert.Equal(t, []string{"alice", "bob", "carol"}, identities(job.ProcessedUsers))
	assert.Equal(t, 1, driver.Reconnects)
	assert.Subset(t, h.transitions(), []string{
		"sending_messages->reconnecting",
		"reconnecting->sending_messages",
		"sending_messages->completed",
	})
	assert.Equal(t, []time.Duration{40 * time.Second, 20 * time.Second}, h.sleeps.Calls(),
		"pacing after a reconnect uses the halved range")
	assert.Equal(t, []string{"session-2"}, driver.ClosedSessions(), "the replacement session is closed")
}

func TestWelcome_ReconnectExhaustionFailsJob(t *testing.T) {
	driver := &testutil.FakeDriver{
		Followers:         []string{"alice", "bob", "carol"},
		ReconnectFailures: -1,
	}
	driver.AfterSend = func(d *testutil.FakeDriver, _ string) { d.Disconnect() }
	h := newHarness(t, driver)

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "reconnection failed after 5 attempts: 1 of 3 candidates processed, 2 remaining", *job.Error)
	assert.Equal(t, 5, driver.Reconnects)
	assert.Equal(t, []string{"alice"}, identities(job.ProcessedUsers))
	assert.Equal(t, model.JobProgress{Total: 3, Processed: 1}, job.Progress)
	assert.Nil(t, job.Result)
	assert.Equal(t, []time.Duration{
		40 * time.Second,
		5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second,
	}, h.sleeps.Calls(), "reconnect backoff is linear in the attempt number")
	assert.Equal(t, []string{"session-1"}, driver.ClosedSessions())
}

func TestWelcome_DiscoveryExhaustionCompletesEmpty(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice"}, DiscoverFailures: 3}
	h := newHarness(t, driver)

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "no followers to process", job.Result.Message)
	require.Len(t, job.Warnings, 1)
	assert.Contains(t, job.Warnings[0], "after 3 attempts")
	assert.Equal(t, 3, driver.Discovers)
	assert.Empty(t, driver.SentTo())
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, h.sleeps.Calls())
	assert.Contains(t, h.transitions(), "checking_notifications->sending_messages")
}

func TestWelcome_SkipsAlreadyProcessedFollowers(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice", "@bob", "alice", " ", "carol"}}
	h := newHarness(t, driver, withProcessed(testutil.NewMemoryProcessedStore("acme", "bob")))

	job := h.runSync(t)

	assert.Equal(t, []string{"alice", "carol"}, driver.SentTo())
	assert.Equal(t, 2, job.Progress.Total)
}

func TestWelcome_RetryFailedOnNextRunLeavesFailuresUnrecorded(t *testing.T) {
	driver := &testutil.FakeDriver{
		Followers:   []string{"alice", "bob"},
		SendResults: map[string]testutil.SendResult{"bob": {Err: errors.New("dm closed")}},
	}
	h := newHarness(t, driver, withDelivery(func(c *config.DeliveryConfig) { c.RetryFailedOnNextRun = true }))

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.True(t, h.processed.Has("alice", "acme"))
	assert.False(t, h.processed.Has("bob", "acme"))
	require.Len(t, job.FailedUsers, 1)
	assert.Equal(t, "dm closed", job.FailedUsers[0].Detail)
}

func TestWelcome_SendTimeoutCountsAsFailure(t *testing.T) {
	driver := &testutil.FakeDriver{
		Followers:  []string{"alice", "bob", "carol"},
		BlockSends: map[string]bool{"bob": true},
	}
	h := newHarness(t, driver, withDelivery(func(c *config.DeliveryConfig) { c.MessageTimeout = 50 * time.Millisecond }))

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.Len(t, job.FailedUsers, 1)
	assert.Equal(t, "bob", job.FailedUsers[0].Identity)
	assert.Contains(t, job.FailedUsers[0].Detail, "timed out")
	assert.Equal(t, []string{"alice", "carol"}, identities(job.ProcessedUsers))
	assert.Equal(t, 1, driver.MaxConcurrentSends())
}

func TestWelcome_StalledSendNeverOverlapsNextSend(t *testing.T) {
	driver := &testutil.FakeDriver{
		Followers:  []string{"alice", "bob", "carol"},
		StallSends: map[string]time.Duration{"bob": 300 * time.Millisecond},
	}
	h := newHarness(t, driver, withDelivery(func(c *config.DeliveryConfig) { c.MessageTimeout = 50 * time.Millisecond }))
	h.delivery.grace = 10 * time.Millisecond

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, driver.MaxConcurrentSends(), "the next send waits for the stalled call to return")
	assert.Equal(t, []string{"alice", "bob", "carol"}, driver.SentTo())
	require.Len(t, job.FailedUsers, 1)
	assert.Equal(t, "bob", job.FailedUsers[0].Identity)
	assert.Contains(t, job.FailedUsers[0].Detail, "timed out")
	assert.Equal(t, 1, driver.Reconnects, "an unresponsive session is replaced before the next send")
	assert.Equal(t, []string{"alice", "carol"}, identities(job.ProcessedUsers))
}

func TestWelcome_ConnectivityErrorForcesReconnect(t *testing.T) {
	driver := &testutil.FakeDriver{
		Followers:   []string{"alice", "bob"},
		SendResults: map[string]testutil.SendResult{"alice": {Err: errors.New("write tcp: broken pipe")}},
	}
	h := newHarness(t, driver)

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, driver.Reconnects, "a connectivity failure marks the session disconnected")
	assert.Equal(t, []string{"bob"}, identities(job.ProcessedUsers))
}

func TestWelcome_LedgerWriteFailureWarnsOnce(t *testing.T) {
	processed := testutil.NewMemoryProcessedStore("acme")
	processed.RecordErr = errors.New("disk full")
	driver := &testutil.FakeDriver{Followers: []string{"alice", "bob"}}
	h := newHarness(t, driver, withProcessed(processed))

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Len(t, job.ProcessedUsers, 2)
	require.Len(t, job.Warnings, 1)
	assert.Contains(t, job.Warnings[0], "disk full")
}

func TestWelcome_LedgerLookupFailureFailsOpen(t *testing.T) {
	processed := testutil.NewMemoryProcessedStore("acme", "alice")
	processed.ExistsErr = errors.New("store offline")
	driver := &testutil.FakeDriver{Followers: []string{"alice", "bob"}}
	h := newHarness(t, driver, withProcessed(processed))

	job := h.runSync(t)

	assert.Equal(t, []string{"alice", "bob"}, driver.SentTo())
	require.NotEmpty(t, job.Warnings)
	assert.Contains(t, job.Warnings[0], "store offline")
}

func TestWelcome_NoStoreSendsEveryone(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice", "bob"}}
	h := newHarness(t, driver, withoutStore())

	job := h.runSync(t)

	assert.Len(t, job.ProcessedUsers, 2)
}

func TestWelcome_ConnectExhaustionFailsJob(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice"}, ConnectFailures: 5}
	h := newHarness(t, driver)

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "could not establish driver session after 5 attempts")
	assert.Equal(t, 5, driver.Connects)
	assert.Empty(t, driver.ClosedSessions())
	assert.Contains(t, h.transitions(), "initializing_browser->failed")
}

func TestWelcome_CancelStopsAtNextCandidate(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice", "bob", "carol"}}
	h := newHarness(t, driver)

	var once sync.Once
	driver.AfterSend = func(_ *testutil.FakeDriver, _ string) {
		once.Do(func() {
			running := h.jobs.List()
			if !assert.Len(t, running, 1) {
				return
			}
			_, err := h.jobs.Cancel(context.Background(), running[0].ID)
			assert.NoError(t, err)
		})
	}

	job, err := h.jobs.Submit(context.Background(), welcomeRequest())
	require.NoError(t, err)
	require.NoError(t, h.jobs.Wait(context.Background()))

	final, err := h.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "cancelled", *final.Error)
	assert.Equal(t, []string{"alice"}, driver.SentTo())
	assert.Equal(t, 1, final.Progress.Processed)
	assert.Len(t, driver.ClosedSessions(), 1)
}

func TestWelcome_ShutdownFailsRunningJob(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice", "bob"}}
	h := newHarness(t, driver)
	driver.AfterSend = func(_ *testutil.FakeDriver, _ string) { h.cancelAll() }

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "service shutting down", *job.Error)
	assert.Len(t, job.ProcessedUsers, 1, "the in-flight send completes and is recorded")
}

type panickingDriver struct {
	*testutil.FakeDriver
}

func (panickingDriver) DiscoverNewFollowers(context.Context, core.DriverSession, string) ([]string, error) {
	panic("selector exploded")
}

func TestWelcome_PanicIsContainedToJob(t *testing.T) {
	fake := &testutil.FakeDriver{}
	h := newHarness(t, fake, withDriver(panickingDriver{FakeDriver: fake}))

	job := h.runSync(t)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "panic: selector exploded", *job.Error)
	assert.Equal(t, []string{"session-1"}, fake.ClosedSessions(), "session is closed on the panic path")
}

func TestWelcome_ProgressIsMonotonic(t *testing.T) {
	driver := &testutil.FakeDriver{
		Followers:   []string{"a", "b", "c", "d"},
		SendResults: map[string]testutil.SendResult{"c": {OK: false}},
	}
	h := newHarness(t, driver)

	var (
		mu   sync.Mutex
		seen []int
	)
	driver.AfterSend = func(_ *testutil.FakeDriver, _ string) {
		for _, j := range h.jobs.List() {
			mu.Lock()
			seen = append(seen, j.Progress.Processed)
			mu.Unlock()
		}
	}

	job := h.runSync(t)

	assert.Equal(t, 4, job.Progress.Processed)
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, len(job.ProcessedUsers)+len(job.FailedUsers), job.Progress.Processed)
}

func TestWelcome_TerminalJobRejectsFurtherChanges(t *testing.T) {
	driver := &testutil.FakeDriver{Followers: []string{"alice"}}
	h := newHarness(t, driver)
	job := h.runSync(t)
	ctx := context.Background()

	require.ErrorIs(t, h.jobs.Fail(ctx, job.ID, "late"), model.ErrInvalidTransition)
	require.ErrorIs(t, h.jobs.Complete(ctx, job.ID, "again"), model.ErrInvalidTransition)
	require.ErrorIs(t, h.jobs.RecordSent(job.ID, "zed"), ErrJobTerminal)
	require.ErrorIs(t, h.jobs.Transition(ctx, job.ID, model.JobStatusReconnecting), model.ErrInvalidTransition)

	after, err := h.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, after.Status)
	assert.Nil(t, after.Error)
}

func TestWelcome_TerminalJobHasResultOrError(t *testing.T) {
	tests := []struct {
		name   string
		driver func() *testutil.FakeDriver
		status model.JobStatus
	}{
		{
			name:   "completed",
			driver: func() *testutil.FakeDriver { return &testutil.FakeDriver{Followers: []string{"alice"}} },
			status: model.JobStatusCompleted,
		},
		{
			name:   "completed with nobody to greet",
			driver: func() *testutil.FakeDriver { return &testutil.FakeDriver{} },
			status: model.JobStatusCompleted,
		},
		{
			name: "connect exhausted",
			driver: func() *testutil.FakeDriver {
				return &testutil.FakeDriver{Followers: []string{"alice"}, ConnectFailures: 5}
			},
			status: model.JobStatusFailed,
		},
		{
			name: "reconnect exhausted after partial progress",
			driver: func() *testutil.FakeDriver {
				d := &testutil.FakeDriver{Followers: []string{"alice", "bob"}, ReconnectFailures: -1}
				d.AfterSend = func(d *testutil.FakeDriver, _ string) { d.Disconnect() }
				return d
			},
			status: model.JobStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.driver())

			job := h.runSync(t)

			assert.Equal(t, tt.status, job.Status)
			assert.True(t, (job.Result != nil) != (job.Error != nil),
				"exactly one of result and error is set, got result=%v error=%v", job.Result, job.Error)
			resp := job.StatusResponse()
			if job.Error != nil {
				assert.Empty(t, resp.Message)
			}
		})
	}
}
