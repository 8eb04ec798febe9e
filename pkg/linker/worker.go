package linker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// WorkerConfig configures the link worker.
type WorkerConfig struct {
	// QueueSize is the maximum number of pending link requests.
	// Default: 16
	QueueSize int
}

// request is a queued link call.
type request struct {
	run   func(ctx context.Context) (Result, error)
	reply chan response
}

type response struct {
	result Result
	err    error
}

// Worker serializes link calls through a single goroutine so that the
// read-then-append of one call never interleaves with another in this
// process.
type Worker struct {
	linker *Linker
	queue  chan request

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	completed int64
	failed    int64
}

// NewWorker creates a worker around a Linker.
func NewWorker(l *Linker, cfg *WorkerConfig) *Worker {
	if cfg == nil {
		cfg = &WorkerConfig{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Worker{
		linker: l,
		queue:  make(chan request, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the worker goroutine. ctx bounds the lifetime of the
// goroutine, not of individual requests.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop waits for queued requests to finish, then stops the goroutine.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LinkChildren queues Linker.LinkChildren and waits for its result.
func (w *Worker) LinkChildren(ctx context.Context, ids map[string]string, parents map[string][]string) (Result, error) {
	return w.submit(ctx, func(ctx context.Context) (Result, error) {
		return w.linker.LinkChildren(ctx, ids, parents)
	})
}

// LinkSectors queues Linker.LinkSectors and waits for its result.
func (w *Worker) LinkSectors(ctx context.Context, ids map[string]string, members map[string][]string) (Result, error) {
	return w.submit(ctx, func(ctx context.Context) (Result, error) {
		return w.linker.LinkSectors(ctx, ids, members)
	})
}

// WorkerStats are counters of processed requests.
type WorkerStats struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
}

// Stats returns current counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Completed: atomic.LoadInt64(&w.completed),
		Failed:    atomic.LoadInt64(&w.failed),
		Pending:   len(w.queue),
	}
}

func (w *Worker) submit(ctx context.Context, run func(ctx context.Context) (Result, error)) (Result, error) {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()
	if !running {
		return Result{}, fmt.Errorf("link worker not running")
	}

	req := request{
		run: func(context.Context) (Result, error) { return run(ctx) },
		// Buffered so the worker never blocks on an abandoned caller.
		reply: make(chan response, 1),
	}

	select {
	case w.queue <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.result, resp.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			for {
				select {
				case req := <-w.queue:
					w.process(ctx, req)
				default:
					return
				}
			}
		case req := <-w.queue:
			w.process(ctx, req)
		}
	}
}

func (w *Worker) process(ctx context.Context, req request) {
	res, err := req.run(ctx)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
	} else {
		atomic.AddInt64(&w.completed, 1)
	}
	req.reply <- response{result: res, err: err}
}
