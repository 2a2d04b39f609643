// Package core defines the ports between the greeter services and their collaborators.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/target/greeter-api/internal/domain/model"
)

// This file contains port interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not concrete adapters.

// ErrJobNotFound is returned by JobStore operations on unknown ids.
var ErrJobNotFound = errors.New("job not found")

// ErrSessionClosed is returned by drivers when the remote session is gone.
var ErrSessionClosed = errors.New("driver session closed")

// JobStore holds job records keyed by id. Callers only ever see snapshots;
// the store owns the records. Mutations on distinct ids never contend on a
// shared lock.
type JobStore interface {
	Create(params model.JobParams) model.Job
	Get(id string) (model.Job, bool)
	// Mutate applies fn to the stored record under that record's lock and
	// bumps UpdatedAt when fn returns nil. A non-nil error from fn discards
	// the patch.
	Mutate(id string, fn func(*model.Job) error) (model.Job, error)
	List() []model.Job
	Delete(id string) bool
	// DeleteOlderThan removes jobs whose retention anchor is before cutoff.
	DeleteOlderThan(cutoff time.Time) int
}

// ProcessedRecordStore is the durable idempotency ledger keyed by
// (follower, account owner).
type ProcessedRecordStore interface {
	Exists(ctx context.Context, followerID, accountOwner string) (bool, error)
	Record(ctx context.Context, followerID, accountOwner string) error
}

// DriverSession identifies one live automation session on the driver.
type DriverSession struct {
	ID string
}

// MessagingDriver is the browser-automation capability the job engine drives.
// SendMessage reports soft failures as (false, nil) and hard failures as an
// error; both count as a failed delivery.
type MessagingDriver interface {
	Connect(ctx context.Context, creds model.ResolvedCredentials, opts model.DriverOptions) (DriverSession, error)
	IsConnected(ctx context.Context, session DriverSession) bool
	Reconnect(ctx context.Context, session DriverSession) (DriverSession, error)
	DiscoverNewFollowers(ctx context.Context, session DriverSession, accountOwner string) ([]string, error)
	SendMessage(ctx context.Context, session DriverSession, identity, text string) (bool, error)
	Close(ctx context.Context, session DriverSession) error
}

// CredentialsResolver turns a credentials reference into a validated cookie set.
type CredentialsResolver interface {
	Resolve(ctx context.Context, creds model.SessionCredentials) (model.ResolvedCredentials, error)
}

// ProcessedRecordLister is implemented by stores that can enumerate their ledger.
type ProcessedRecordLister interface {
	ListByOwner(ctx context.Context, accountOwner string, limit int) ([]model.ProcessedRecord, error)
}
