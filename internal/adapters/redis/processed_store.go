// Package redis provides Redis-based adapters for the greeter service.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
)

// ErrIdentityRequired is returned when a follower id or account owner is blank.
var ErrIdentityRequired = errors.New("follower_id and account_owner are required")

// ProcessedStore is a Redis-backed core.ProcessedRecordStore. Each pair is a
// SET NX key; a per-owner sorted set indexes records by time for listing.
// Keys share a {owner} hash tag so both live on one cluster slot.
type ProcessedStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var (
	_ core.ProcessedRecordStore  = (*ProcessedStore)(nil)
	_ core.ProcessedRecordLister = (*ProcessedStore)(nil)
)

// NewProcessedStore creates a Redis-based processed store using the default prefix.
func NewProcessedStore(client redis.UniversalClient) *ProcessedStore {
	return NewProcessedStoreWithPrefix(client, "greeter:processed")
}

// NewProcessedStoreWithPrefix creates a Redis processed store with a custom key prefix.
func NewProcessedStoreWithPrefix(client redis.UniversalClient, prefix string) *ProcessedStore {
	return &ProcessedStore{
		client: client,
		prefix: strings.TrimSuffix(prefix, ":"),
		now:    time.Now,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

func (s *ProcessedStore) recordKey(owner, follower string) string {
	return s.prefix + ":{" + owner + "}:" + follower
}

func (s *ProcessedStore) indexKey(owner string) string {
	return s.prefix + ":{" + owner + "}"
}

// Exists reports whether the follower was already handled for the owner.
func (s *ProcessedStore) Exists(ctx context.Context, followerID, accountOwner string) (bool, error) {
	f, o := normalize(followerID), normalize(accountOwner)
	if f == "" || o == "" {
		return false, ErrIdentityRequired
	}

	n, err := s.client.Exists(ctx, s.recordKey(o, f)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Record marks the follower as handled. The first write wins.
func (s *ProcessedStore) Record(ctx context.Context, followerID, accountOwner string) error {
	f, o := normalize(followerID), normalize(accountOwner)
	if f == "" || o == "" {
		return ErrIdentityRequired
	}

	at := s.now().UTC()
	created, err := s.client.SetNX(ctx, s.recordKey(o, f), at.Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !created {
		return nil
	}

	if zErr := s.client.ZAdd(ctx, s.indexKey(o), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: f,
	}).Err(); zErr != nil {
		return fmt.Errorf("redis zadd: %w", zErr)
	}
	return nil
}

// ListByOwner returns the most recent records for an account owner.
func (s *ProcessedStore) ListByOwner(ctx context.Context, accountOwner string, limit int) ([]model.ProcessedRecord, error) {
	o := normalize(accountOwner)
	if o == "" {
		return nil, ErrIdentityRequired
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	members, err := s.client.ZRevRangeWithScores(ctx, s.indexKey(o), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}

	out := make([]model.ProcessedRecord, 0, len(members))
	for _, m := range members {
		follower, ok := m.Member.(string)
		if !ok {
			continue
		}
		out = append(out, model.ProcessedRecord{
			FollowerID:   follower,
			AccountOwner: o,
			ProcessedAt:  time.UnixMilli(int64(m.Score)).UTC(),
		})
	}
	return out, nil
}
