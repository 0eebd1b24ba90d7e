// Package retry provides a bounded retry policy with exponential backoff
// that stops as soon as its context is cancelled.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultPolicy is three attempts starting at 500ms.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	Multiplier:     2,
}

// NewPolicy builds a policy with the default growth settings.
func NewPolicy(attempts int, backoff time.Duration) Policy {
	p := DefaultPolicy
	p.MaxAttempts = attempts
	p.InitialBackoff = backoff
	return p
}

// Retryable is implemented by errors that know whether a retry can help.
type Retryable interface {
	IsRetryable() bool
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string     { return e.err.Error() }
func (e *permanentError) Unwrap() error     { return e.err }
func (e *permanentError) IsRetryable() bool { return false }

// IsRetryable reports whether err may succeed on another attempt.
// Context errors never are; errors without an opinion are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// Backoff returns the wait before attempt n (1-based, n >= 2).
func (p Policy) Backoff(n int) time.Duration {
	d := p.InitialBackoff
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 2; i < n; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempt budget is spent, or ctx is done. It returns the number of
// attempts made and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := max(1, p.MaxAttempts)

	var err error
	for n := 1; n <= attempts; n++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return n - 1, err
		}

		err = fn(ctx, n)
		if err == nil || !IsRetryable(err) || n == attempts {
			return n, err
		}

		timer := time.NewTimer(p.Backoff(n + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, err
		case <-timer.C:
		}
	}
	return attempts, err
}
