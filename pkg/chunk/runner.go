package chunk

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/retry"
)

// Handler processes one chunk. A returned error makes the whole chunk
// eligible for retry, so handlers must be idempotent.
type Handler[T any] func(ctx context.Context, c Chunk[T]) error

// Progress reports how far a run got.
type Progress struct {
	TotalChunks     int           `json:"total_chunks"`
	CompletedChunks int           `json:"completed_chunks"`
	CompletedItems  int           `json:"completed_items"`
	TotalItems      int           `json:"total_items"`
	Retries         int           `json:"retries"`
	Duration        time.Duration `json:"duration"`
}

// PercentComplete returns completed chunks as a percentage.
func (p *Progress) PercentComplete() float64 {
	if p.TotalChunks == 0 {
		return 100
	}
	return float64(p.CompletedChunks) / float64(p.TotalChunks) * 100
}

// IsComplete checks if all chunks have been committed.
func (p *Progress) IsComplete() bool {
	return p.CompletedChunks == p.TotalChunks
}

// Runner runs a Handler over chunks sequentially with per-chunk retry.
type Runner[T any] struct {
	cfg     *Config
	policy  *retry.Policy
	limiter *rate.Limiter
	logger  logging.Logger

	// Callbacks
	onChunkDone func(c Chunk[T], elapsed time.Duration)
	onRetry     func(c Chunk[T], attempt int, err error)
}

// NewRunner creates a runner. A nil cfg uses DefaultConfig.
func NewRunner[T any](cfg *Config, logger logging.Logger) *Runner[T] {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	_ = cfg.Validate()

	r := &Runner[T]{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		policy: &retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff: &retry.BackoffConfig{
				Strategy:     retry.BackoffExponential,
				BaseInterval: cfg.RetryBaseDelay,
				MaxInterval:  cfg.RetryMaxDelay,
				Jitter:       0.5,
			},
		},
	}

	if cfg.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return r
}

// SetPolicy replaces the retry policy.
func (r *Runner[T]) SetPolicy(p *retry.Policy) {
	r.policy = p
}

// SetCallbacks sets the callback functions.
func (r *Runner[T]) SetCallbacks(onChunkDone func(Chunk[T], time.Duration), onRetry func(Chunk[T], int, error)) {
	r.onChunkDone = onChunkDone
	r.onRetry = onRetry
}

// Size returns the chunk size in effect.
func (r *Runner[T]) Size() int {
	return r.cfg.EffectiveSize()
}

// Run splits items and runs handle on each chunk in order. It stops at the
// first chunk whose retries are exhausted; earlier chunks stay committed and
// the returned Progress reflects them.
func (r *Runner[T]) Run(ctx context.Context, items []T, handle Handler[T]) (*Progress, error) {
	start := time.Now()
	chunks := Split(items, r.Size())
	progress := &Progress{
		TotalChunks: len(chunks),
		TotalItems:  len(items),
	}
	defer func() { progress.Duration = time.Since(start) }()

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return progress, err
		}

		chunkStart := time.Now()
		policy := *r.policy
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			progress.Retries++
			r.logger.Warn("chunk %d/%d attempt %d failed, retrying in %s: %v",
				c.Index+1, c.Total, attempt, wait.Round(time.Millisecond), err)
			if r.onRetry != nil {
				r.onRetry(c, attempt, err)
			}
		}

		err := retry.Do(ctx, &policy, func(ctx context.Context) error {
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					return errors.E(errors.KindTimeout, "chunk.Run", "rate limiter wait", err)
				}
			}
			return handle(ctx, c)
		})
		if err != nil {
			r.logger.Error("chunk %d/%d failed after retries: %v", c.Index+1, c.Total, err)
			return progress, fmt.Errorf("chunk %d/%d: %w", c.Index+1, c.Total, err)
		}

		progress.CompletedChunks++
		progress.CompletedItems += len(c.Items)
		elapsed := time.Since(chunkStart)
		if r.onChunkDone != nil {
			r.onChunkDone(c, elapsed)
		}
		r.logger.Debug("chunk %d/%d committed (%d items)", c.Index+1, c.Total, len(c.Items))
	}

	return progress, nil
}
