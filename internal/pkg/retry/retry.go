package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultCallTimeout bounds a single outbound provider call. Providers
	// answer well under this in practice; a timeout converts to a retryable
	// failure for the caller.
	DefaultCallTimeout = 15 * time.Second

	defaultMaxAttempts     = 3
	defaultInitialInterval = 500 * time.Millisecond
)

// Do runs fn with bounded exponential backoff. It must only be used for
// operations that are safe to repeat: token refreshes, reads, and other
// provider calls that are idempotent on the provider side. Non-idempotent
// calls (checkout creation, meeting insert) are single-shot and their callers
// own any retry decision.
func Do(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, defaultMaxAttempts-1), ctx)
	return backoff.Retry(fn, policy)
}

// Permanent marks err as non-retryable so Do stops immediately. Provider
// rejections (4xx) go through here; only transport-level failures and 5xx
// responses are worth repeating.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
