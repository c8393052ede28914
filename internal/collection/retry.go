package collection

import (
	"context"
	"errors"
	"time"

	coreerrors "github.com/gridpulse-lab/gridpulse/internal/core/errors"
)

// RetryPolicy retries transient provider failures a fixed number of times
// with a fixed short delay. There is no backoff or queueing here;
// cross-invocation rescheduling belongs to the external scheduler.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy matches the collection boundary contract.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 250 * time.Millisecond}
}

// Do runs fn up to Attempts times. Only transient provider errors are
// retried; auth/validation failures and context cancellation surface
// immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		var perr *coreerrors.ProviderError
		if !errors.As(err, &perr) || !perr.Retryable() {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
