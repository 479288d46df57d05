package util

import (
	"context"
	"errors"
	"time"
)

// Permanent wraps an error that must not be retried. Retry unwraps it and
// returns the underlying error immediately.
type Permanent struct {
	Err error
}

// Error returns the underlying error message.
func (p *Permanent) Error() string { return p.Err.Error() }

// Unwrap exposes the wrapped error to errors.Is/As.
func (p *Permanent) Unwrap() error { return p.Err }

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. It returns nil on the first successful call, or the last error
// if all attempts fail. An error wrapped in Permanent stops retrying at once.
// The function respects context cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}
