/*
retry.go - Bounded retry for optimistic-concurrency conflicts

ErrConcurrentModification is an implementation artifact, not a business
outcome, so the engines retry the whole transaction a few times with a short
backoff before surfacing it. Business errors and storage faults pass through
on the first attempt.
*/
package booking

import (
	"context"
	"time"
)

const (
	defaultRetryAttempts = 4
	defaultRetryBackoff  = 5 * time.Millisecond
)

// withRetry runs fn up to attempts times, retrying only retryable errors,
// doubling the backoff between attempts. Cancellation of ctx wins over the
// remaining attempts.
func withRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := defaultRetryBackoff

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
