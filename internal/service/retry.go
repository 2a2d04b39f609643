package service

import (
	"context"
	"fmt"
	"time"
)

// sleepFunc blocks for d or until ctx is done. Tests swap it for a recorder.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryPolicy bounds attempts and chooses the delay after a failed attempt.
type retryPolicy struct {
	attempts int
	delay    func(attempt int) time.Duration
}

// linearPolicy waits attempt×base between attempts.
func linearPolicy(attempts int, base time.Duration) retryPolicy {
	return retryPolicy{
		attempts: max(attempts, 1),
		delay:    func(attempt int) time.Duration { return time.Duration(attempt) * base },
	}
}

// fixedPolicy waits the same delay between attempts.
func fixedPolicy(attempts int, d time.Duration) retryPolicy {
	return retryPolicy{
		attempts: max(attempts, 1),
		delay:    func(int) time.Duration { return d },
	}
}

// run calls fn until it succeeds or attempts run out. It stops early when
// ctx is done and returns the last error from fn.
func (p retryPolicy) run(ctx context.Context, sleep sleepFunc, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return err
			}
			return fmt.Errorf("%w (interrupted: %w)", lastErr, err)
		}
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if attempt < p.attempts {
			if err := sleep(ctx, p.delay(attempt)); err != nil {
				return fmt.Errorf("%w (interrupted: %w)", lastErr, err)
			}
		}
	}
	return lastErr
}
