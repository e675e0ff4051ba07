package strategy

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retry loop around a strategy's provider call.
// It is a plain value so tests can substitute attempt counts and intervals.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Retryable       func(error) bool
}

// DefaultRetryPolicy retries transient errors up to 3 attempts with
// exponential backoff and jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Retryable:       IsTransient,
	}
}

// Run executes op under the policy. Non-retryable errors abort immediately;
// retryable errors are re-attempted until the attempt cap or context
// cancellation, whichever comes first.
func (p RetryPolicy) Run(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	// RandomizationFactor stays at the library default for jitter.

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
