// Package chunk processes long id lists in fixed-size chunks.
//
// Chunks are handled one at a time. Each chunk is retried as a whole under a
// bounded retry policy; once a chunk succeeds it stays committed even if a
// later chunk exhausts its retries.
//
// Example usage:
//
//	runner := chunk.NewRunner[string](chunk.DefaultConfig(), logger)
//	progress, err := runner.Run(ctx, ids, func(ctx context.Context, c chunk.Chunk[string]) error {
//	    return syncBatch(ctx, c.Items)
//	})
package chunk

import (
	"time"
)

// EnvironmentTest selects the test chunk size.
const EnvironmentTest = "test"

// Config configures chunking behavior.
type Config struct {
	// Size is the number of items per chunk (default: 50)
	Size int

	// TestSize is used instead of Size when Environment is "test" (default: 10)
	TestSize int

	// Environment is the deployment environment name
	Environment string

	// Retry configuration
	MaxAttempts    int           // Attempts per chunk, first included (default: 3)
	RetryBaseDelay time.Duration // Initial backoff between attempts (default: 500ms)
	RetryMaxDelay  time.Duration // Backoff cap (default: 30s)

	// RequestsPerSecond limits chunk attempts. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns sensible defaults for most environments.
func DefaultConfig() *Config {
	return &Config{
		Size:           50,
		TestSize:       10,
		MaxAttempts:    3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  30 * time.Second,
		Burst:          1,
	}
}

// Validate fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Size <= 0 {
		c.Size = 50
	}
	if c.TestSize <= 0 {
		c.TestSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// EffectiveSize returns the chunk size for the configured environment.
func (c *Config) EffectiveSize() int {
	if c.Environment == EnvironmentTest {
		return c.TestSize
	}
	return c.Size
}
