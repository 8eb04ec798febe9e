// Package retry provides bounded retry with backoff for chunked index writes.
//
// A Policy decides, for a given attempt and error, whether another attempt
// is worthwhile and how long to wait before it. Do runs a function under a
// Policy until it succeeds, the policy gives up, or the context ends.
//
// Example usage:
//
//	policy := retry.DefaultPolicy()
//	err := retry.Do(ctx, policy, func(ctx context.Context) error {
//	    return backend.BulkUpsert(ctx, index, docs)
//	})
package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the wait before the next attempt.
type BackoffStrategy int

const (
	// BackoffExponential uses exponential backoff: base * 2^(attempt-1)
	BackoffExponential BackoffStrategy = iota

	// BackoffLinear uses linear backoff: base * attempt
	BackoffLinear

	// BackoffConstant uses constant backoff: base (no increase)
	BackoffConstant
)

// DefaultBaseInterval is the first wait of the default backoff.
const DefaultBaseInterval = 500 * time.Millisecond

// DefaultMaxInterval caps any single wait.
const DefaultMaxInterval = 30 * time.Second

// BackoffConfig configures the backoff behavior.
type BackoffConfig struct {
	// Strategy is the backoff strategy to use.
	// Default is BackoffExponential.
	Strategy BackoffStrategy

	// BaseInterval is the base interval for backoff calculation.
	BaseInterval time.Duration

	// MaxInterval is the maximum interval between attempts.
	MaxInterval time.Duration

	// Jitter adds randomness so concurrent jobs do not retry in lockstep.
	// Value between 0.0 (no jitter) and 1.0 (full jitter).
	Jitter float64
}

// DefaultBackoffConfig returns a BackoffConfig with default values.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Strategy:     BackoffExponential,
		BaseInterval: DefaultBaseInterval,
		MaxInterval:  DefaultMaxInterval,
		Jitter:       0.5,
	}
}

// Interval returns the wait before the attempt that follows attempt number
// attempts (1-based), jitter included.
func (c *BackoffConfig) Interval(attempts int) time.Duration {
	return c.calculateInterval(attempts)
}

// calculateInterval calculates the backoff interval for the given attempt.
func (c *BackoffConfig) calculateInterval(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	var interval time.Duration

	switch c.Strategy {
	case BackoffLinear:
		interval = c.BaseInterval * time.Duration(attempts)

	case BackoffConstant:
		interval = c.BaseInterval

	default:
		// attempts 1 -> 1x, attempts 2 -> 2x, attempts 3 -> 4x, etc.
		multiplier := math.Pow(2, float64(attempts-1))
		interval = time.Duration(float64(c.BaseInterval) * multiplier)
	}

	if c.MaxInterval > 0 && interval > c.MaxInterval {
		interval = c.MaxInterval
	}

	if c.Jitter > 0 {
		interval = c.applyJitter(interval)
	}

	return interval
}

// applyJitter spreads the interval uniformly over [1-jitter, 1+jitter].
func (c *BackoffConfig) applyJitter(interval time.Duration) time.Duration {
	jitter := c.Jitter
	if jitter > 1 {
		jitter = 1
	}

	jitterRange := float64(interval) * jitter
	jitterValue := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(interval) + jitterValue)
}

// Schedule returns the un-jittered waits for the given number of attempts.
// Useful for logging the expected retry schedule.
func (c *BackoffConfig) Schedule(maxAttempts int) []time.Duration {
	if maxAttempts <= 0 {
		return nil
	}

	plain := *c
	plain.Jitter = 0

	schedule := make([]time.Duration, maxAttempts)
	for i := 0; i < maxAttempts; i++ {
		schedule[i] = plain.calculateInterval(i + 1)
	}
	return schedule
}

// TotalBackoffTime calculates the un-jittered total wait for all attempts.
func (c *BackoffConfig) TotalBackoffTime(maxAttempts int) time.Duration {
	var total time.Duration
	for _, d := range c.Schedule(maxAttempts) {
		total += d
	}
	return total
}
