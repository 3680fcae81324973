package page

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds provider retries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy retries quickly a few times; page start should not stall.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  5 * time.Second,
	MaxRetries:      3,
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retrying wraps a provider so that failed attempts, including pending
// results that settle with an error, are retried with exponential backoff.
// Stream outcomes are passed through untouched. Once retries are exhausted
// the last error is returned and, as for any provider, left unhandled.
func Retrying(provider Provider, policy RetryPolicy) Provider {
	return func(ctx context.Context, results *Results) (Outcome, error) {
		b := backoff.NewExponentialBackOff()
		if policy.InitialInterval > 0 {
			b.InitialInterval = policy.InitialInterval
		}
		if policy.MaxInterval > 0 {
			b.MaxInterval = policy.MaxInterval
		}
		b.MaxElapsedTime = policy.MaxElapsedTime
		b.RandomizationFactor = 0.1

		var policyBackoff backoff.BackOff = b
		if policy.MaxRetries > 0 {
			policyBackoff = backoff.WithMaxRetries(b, policy.MaxRetries)
		}

		var stream Stream
		v, err := backoff.RetryWithData(func() (any, error) {
			out, err := provider(ctx, results)
			if err != nil {
				return nil, err
			}
			switch o := out.(type) {
			case *Future:
				return o.Wait(ctx)
			case Stream:
				stream = o
				return nil, nil
			case Value:
				return o.V, nil
			}
			return nil, nil
		}, backoff.WithContext(policyBackoff, ctx))
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				return nil, perm.Err
			}
			return nil, err
		}
		if stream != nil {
			return stream, nil
		}
		return Immediate(v), nil
	}
}
