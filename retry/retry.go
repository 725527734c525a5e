// Package retry provides a bounded retry combinator.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 are treated as 1.
	Attempts int

	// Backoff is the pause between consecutive tries.
	Backoff time.Duration

	// Retryable decides whether an error is worth another try. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The last error is returned unchanged so callers can
// still classify it.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(p.Backoff):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		slog.Debug("retry: attempt failed", "attempt", i+1, "of", attempts, "error", err)
	}
	return err
}
