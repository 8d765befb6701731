package mysequel

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how SQLPool retries connection acquisition.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxElapsed  time.Duration
}

// DefaultRetryPolicy returns the acquisition policy used for Options with
// Retry enabled.
func DefaultRetryPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  retries,
		BaseBackoff: 20 * time.Millisecond,
		MaxBackoff:  500 * time.Millisecond,
		MaxElapsed:  10 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.BaseBackoff > 0 {
		eb.InitialInterval = p.BaseBackoff
	}
	if p.MaxBackoff > 0 {
		eb.MaxInterval = p.MaxBackoff
	}
	eb.MaxElapsedTime = p.MaxElapsed
	eb.Reset()
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// retryWithPolicy runs op until it succeeds, returns an error that Classify
// does not consider retryable, or the policy runs out.
func retryWithPolicy[T any](ctx context.Context, pol RetryPolicy, op func() (T, error), classify func(error) ErrorClass) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return v, backoff.Permanent(err)
		}
		if classify(err) != ErrClassRetryable {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, pol.backOff(ctx))
}
