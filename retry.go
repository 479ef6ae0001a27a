package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy retries a failing producer with exponential backoff before the
// failure is recorded. Cancelling the operation stops the retries.
type RetryPolicy struct {
	MaxAttempts     uint          // total attempts including the first; 0 => 3
	InitialInterval time.Duration // 0 => 100ms
	MaxInterval     time.Duration // 0 => 5s
	Multiplier      float64       // 0 => 2
	// Retryable reports whether err deserves another attempt.
	// nil => everything except context cancellation and deadline errors.
	Retryable func(err error) bool
}

func (p *RetryPolicy) validate() error {
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return fmt.Errorf("querycache: retry multiplier %v must be >= 1", p.Multiplier)
	}
	if p.InitialInterval < 0 || p.MaxInterval < 0 {
		return fmt.Errorf("querycache: negative retry interval")
	}
	return nil
}

func (p *RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (p *RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = coalesce(p.InitialInterval, 100*time.Millisecond)
	b.MaxInterval = coalesce(p.MaxInterval, 5*time.Second)
	b.Multiplier = coalesce(p.Multiplier, 2.0)
	return b
}

func retryCall[R any](ctx context.Context, p *RetryPolicy, fn func() (R, error), notify func(error, time.Duration)) (R, error) {
	return backoff.Retry(ctx, func() (R, error) {
		v, err := fn()
		if err != nil && !p.retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(coalesce(p.MaxAttempts, 3)),
		backoff.WithNotify(notify),
	)
}
