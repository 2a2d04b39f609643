package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/greeter-api/internal/core"
)

// DiscoveryServiceOptions groups dependencies for DiscoveryService.
type DiscoveryServiceOptions struct {
	Driver      core.MessagingDriver      // Required: messaging driver
	Store       core.ProcessedRecordStore // Optional: idempotency ledger; nil disables filtering
	Attempts    int                       // Optional: scan attempts, default 3
	Backoff     time.Duration             // Optional: fixed wait between attempts
	Concurrency int                       // Optional: parallel ledger lookups, default 4
	Logger      *slog.Logger              // Optional: structured logger
}

// DiscoveryService finds new followers and filters out those already handled.
type DiscoveryService struct {
	driver      core.MessagingDriver
	store       core.ProcessedRecordStore
	policy      retryPolicy
	concurrency int
	logger      *slog.Logger
	sleep       sleepFunc
}

// NewDiscoveryService constructs a DiscoveryService.
func NewDiscoveryService(opts DiscoveryServiceOptions) (*DiscoveryService, error) {
	if opts.Driver == nil {
		return nil, errors.New("MessagingDriver is required")
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DiscoveryService{
		driver:      opts.Driver,
		store:       opts.Store,
		policy:      fixedPolicy(attempts, opts.Backoff),
		concurrency: concurrency,
		logger:      logger.With("component", "discovery_service"),
		sleep:       sleepCtx,
	}, nil
}

// Discover returns the ordered, de-duplicated followers of owner that have
// not been processed yet. Scan exhaustion and ledger errors degrade to
// warnings rather than errors: exhaustion yields no candidates, ledger
// errors keep the identity.
func (d *DiscoveryService) Discover(
	ctx context.Context,
	session core.DriverSession,
	owner string,
) ([]string, []string) {
	var raw []string
	err := d.policy.run(ctx, d.sleep, func(attempt int) error {
		found, err := d.driver.DiscoverNewFollowers(ctx, session, owner)
		if err != nil {
			d.logger.WarnContext(ctx, "notification scan failed",
				"account_owner", owner,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		raw = found
		return nil
	})
	if err != nil {
		return []string{}, []string{
			fmt.Sprintf("could not check notifications after %d attempts: %v", d.policy.attempts, err),
		}
	}

	unique := dedupeIdentities(raw)
	if d.store == nil || len(unique) == 0 {
		return unique, nil
	}
	return d.filterProcessed(ctx, owner, unique)
}

func (d *DiscoveryService) filterProcessed(ctx context.Context, owner string, ids []string) ([]string, []string) {
	seen := make([]bool, len(ids))
	failed := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			exists, err := d.store.Exists(gctx, id, owner)
			if err != nil {
				failed[i] = err
				return nil
			}
			seen[i] = exists
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(ids))
	var lookupErrs int
	var firstErr error
	for i, id := range ids {
		if failed[i] != nil {
			lookupErrs++
			if firstErr == nil {
				firstErr = failed[i]
			}
		}
		if !seen[i] {
			out = append(out, id)
		}
	}

	if lookupErrs == 0 {
		return out, nil
	}
	d.logger.WarnContext(ctx, "processed-record lookups failed; keeping followers",
		"account_owner", owner,
		"failed_lookups", lookupErrs,
		"error", firstErr,
	)
	return out, []string{
		fmt.Sprintf("processed-record lookup failed for %d followers; they were kept as new: %v", lookupErrs, firstErr),
	}
}

// dedupeIdentities trims, strips a leading "@" and drops blanks and
// case-insensitive repeats, keeping first-seen order.
func dedupeIdentities(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		id := strings.TrimPrefix(strings.TrimSpace(r), "@")
		if id == "" {
			continue
		}
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}
