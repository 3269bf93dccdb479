package database

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxAttempts is the number of tries a round trip gets when
// RetryConfig.MaxAttempts is unset.
const DefaultMaxAttempts = 5

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.InitialInterval <= 0 {
		r.InitialInterval = 100 * time.Millisecond
	}
	if r.MaxInterval <= 0 {
		r.MaxInterval = 5 * time.Second
	}
	return r
}

func (r RetryConfig) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	return b
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConnection)
}

// retry runs op until it succeeds, fails permanently, or runs out of
// attempts. op receives the 1-based attempt number.
func retry[T any](ctx context.Context, cfg RetryConfig, notify func(error, time.Duration), op func(attempt int) (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(attempt)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(cfg.backOff()),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithNotify(notify),
	)
}
