package loader

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying wraps a Fetcher and retries fetches that failed with a retryable
// status (5xx, 429). Transport errors and other statuses fail immediately.
type Retrying struct {
	inner    Fetcher
	attempts uint64
	initial  time.Duration
}

// NewRetrying returns a Fetcher making at most attempts tries per specifier.
// attempts <= 1 disables retrying.
func NewRetrying(inner Fetcher, attempts int, initial time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	return &Retrying{inner: inner, attempts: uint64(attempts), initial: initial}
}

// Fetch calls the wrapped fetcher until it succeeds, fails permanently, or
// runs out of attempts.
func (r *Retrying) Fetch(ctx context.Context, spec string) (*Module, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, r.attempts-1), ctx)

	var mod *Module
	err := backoff.Retry(func() error {
		m, err := r.inner.Fetch(ctx, spec)
		if err == nil {
			mod = m
			return nil
		}
		var fe *FetchError
		if errors.As(err, &fe) && fe.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		return nil, err
	}
	return mod, nil
}
