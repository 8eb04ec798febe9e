package retry

import (
	"context"
	"time"

	"github.com/exploopio/lakesync/pkg/errors"
)

// DefaultMaxAttempts is the default number of attempts, first try included.
const DefaultMaxAttempts = 3

// Policy is a bounded retry policy.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff computes the wait between attempts.
	Backoff *BackoffConfig

	// Retryable classifies errors. Defaults to errors.IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before each wait, when set.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns 3 attempts with randomized exponential backoff.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoffConfig(),
	}
}

// ShouldRetry reports whether another attempt should follow the failed
// attempt number attempt (1-based), and how long to wait first.
// It has no side effects.
func (p *Policy) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if attempt >= maxAttempts {
		return false, 0
	}

	retryable := p.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}
	if !retryable(err) {
		return false, 0
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultBackoffConfig()
	}
	return true, backoff.Interval(attempt)
}

// Do runs fn until it succeeds, the policy stops retrying, or ctx is done.
// The last error from fn is returned.
func Do(ctx context.Context, p *Policy, fn func(ctx context.Context) error) error {
	if p == nil {
		p = DefaultPolicy()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		again, wait := p.ShouldRetry(attempt, err)
		if !again {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
