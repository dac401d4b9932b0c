// Package retry implements bounded exponential backoff as an explicit policy object.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidMaxAttempts is returned when a policy allows no attempts at all.
var ErrInvalidMaxAttempts = errors.New("retry: max attempts must be positive")

// Policy describes how many times a unit of work runs and how long to wait between runs.
// The delay before attempt n+1 is BaseDelay * 2^(n-1), capped at MaxDelay when set.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether a failed attempt may be repeated. nil retries every error
	// except those wrapped with Permanent.
	Retryable func(error) bool
	// OnRetry is called before sleeping with the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts run out or
// ctx is done. fn receives the 1-based attempt number. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(lastErr, err)
			}
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) || attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}
		if err := Sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}

	return unwrapPermanent(lastErr)
}

func (p Policy) retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func unwrapPermanent(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) && perm == err {
		return perm.err
	}
	return err
}
