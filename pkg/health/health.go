// Package health serves liveness, readiness and status probes for the
// lakesync daemon.
//
// Checks are registered by name. A failing required check makes the
// process unhealthy; a failing optional check only degrades it, so the
// daemon keeps receiving ingest work while the search cluster is away.
//
//	h := health.NewHandler(health.WithVersion(version))
//	h.Register("store", health.PingCheck(st.Ping))
//	h.RegisterOptional("search", health.PingCheck(backend.Ping))
//	h.Routes(mux)
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Probe paths.
const (
	LivenessPath  = "/healthz"
	ReadinessPath = "/readyz"
	StatusPath    = "/health"
)

// Status is a check or process state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker reports the state of one dependency.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) Result

// Check implements Checker.
func (f CheckFunc) Check(ctx context.Context) Result { return f(ctx) }

// Result is the outcome of one check.
type Result struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Optional bool           `json:"optional,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Report is the body of the status probe.
type Report struct {
	Status    Status            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]Result `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type registration struct {
	checker  Checker
	optional bool
}

// Handler runs checks and serves the probes.
type Handler struct {
	mu     sync.RWMutex
	checks map[string]registration
	ready  bool

	version     string
	timeout     time.Duration
	hideDetails bool
	started     time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithVersion reports version in the status probe.
func WithVersion(version string) Option {
	return func(h *Handler) { h.version = version }
}

// WithTimeout bounds one round of checks. Default: 5s
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHideDetails omits per-check results from the status probe.
func WithHideDetails() Option {
	return func(h *Handler) { h.hideDetails = true }
}

// NewHandler creates a Handler. It starts not ready.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		checks:  make(map[string]registration),
		timeout: 5 * time.Second,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a required check.
func (h *Handler) Register(name string, c Checker) {
	h.register(name, c, false)
}

// RegisterOptional adds a check whose failure only degrades the process.
func (h *Handler) RegisterOptional(name string, c Checker) {
	h.register(name, c, true)
}

func (h *Handler) register(name string, c Checker, optional bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registration{checker: c, optional: optional}
}

// SetReady marks the process ready (or not) for work.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports the readiness flag.
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Check runs every registered check concurrently.
func (h *Handler) Check(ctx context.Context) Report {
	h.mu.RLock()
	checks := make(map[string]registration, len(h.checks))
	for name, r := range h.checks {
		checks[name] = r
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(checks))
	)
	for name, r := range checks {
		wg.Add(1)
		go func(name string, r registration) {
			defer wg.Done()
			start := time.Now()
			res := r.checker.Check(ctx)
			res.Duration = time.Since(start)
			res.Optional = r.optional
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, r)
	}
	wg.Wait()

	report := Report{
		Status:    overall(results),
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
	if !h.hideDetails {
		report.Checks = results
	}
	return report
}

// overall folds check results; optional failures degrade.
func overall(results map[string]Result) Status {
	status := StatusHealthy
	for _, r := range results {
		switch {
		case r.Status == StatusUnhealthy && !r.Optional:
			return StatusUnhealthy
		case r.Status != StatusHealthy:
			status = StatusDegraded
		}
	}
	return status
}

// Routes mounts the probes on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.Handle(LivenessPath, h.LivenessHandler())
	mux.Handle(ReadinessPath, h.ReadinessHandler())
	mux.Handle(StatusPath, h.StatusHandler())
}

// LivenessHandler answers 200 while the process can serve HTTP.
func (h *Handler) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": StatusHealthy})
	})
}

// ReadinessHandler answers 503 until SetReady(true) and whenever a required
// check fails.
func (h *Handler) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  StatusUnhealthy,
				"message": "not ready",
			})
			return
		}
		report := h.Check(r.Context())
		writeJSON(w, statusCode(report.Status), report)
	})
}

// StatusHandler answers with the full report.
func (h *Handler) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := h.Check(r.Context())
		writeJSON(w, statusCode(report.Status), report)
	})
}

func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// PingCheck reports unhealthy when ping fails. Store.Ping and
// search.Backend.Ping both fit.
func PingCheck(ping func(ctx context.Context) error) Checker {
	return CheckFunc(func(ctx context.Context) Result {
		if err := ping(ctx); err != nil {
			return Result{Status: StatusUnhealthy, Error: err.Error()}
		}
		return Result{Status: StatusHealthy, Message: "reachable"}
	})
}

// SyncAgeCheck degrades when the last successful sync is older than MaxAge.
type SyncAgeCheck struct {
	// Last returns the time of the last successful sync, zero if none.
	Last   func() time.Time
	MaxAge time.Duration
}

// Check implements Checker.
func (c *SyncAgeCheck) Check(_ context.Context) Result {
	last := c.Last()
	if last.IsZero() {
		return Result{Status: StatusDegraded, Message: "no successful sync yet"}
	}
	age := time.Since(last)
	res := Result{Metadata: map[string]any{"last_sync": last.UTC().Format(time.RFC3339)}}
	if c.MaxAge > 0 && age > c.MaxAge {
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("last sync %s ago exceeds %s", age.Round(time.Second), c.MaxAge)
		return res
	}
	res.Status = StatusHealthy
	res.Message = fmt.Sprintf("last sync %s ago", age.Round(time.Second))
	return res
}

// DiskCheck checks free space on the filesystem holding Path, typically
// the SQLite database directory.
type DiskCheck struct {
	Path string
	// MinFreePercent takes precedence over MinFreeBytes when set.
	MinFreePercent float64
	MinFreeBytes   uint64
}

// Check implements Checker.
func (c *DiskCheck) Check(_ context.Context) Result {
	path := c.Path
	if path == "" {
		path = "/"
	}

	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Status: StatusUnhealthy, Error: fmt.Sprintf("statfs %s: %v", path, err)}
	}
	total := st.Blocks * uint64(st.Bsize) //nolint:gosec // Bsize is positive
	free := st.Bavail * uint64(st.Bsize)  //nolint:gosec // Bsize is positive
	var freePercent float64
	if total > 0 {
		freePercent = float64(free) / float64(total) * 100
	}

	res := Result{Metadata: map[string]any{
		"path":         path,
		"total_bytes":  total,
		"free_bytes":   free,
		"free_percent": fmt.Sprintf("%.2f", freePercent),
	}}
	switch {
	case c.MinFreePercent > 0 && freePercent < c.MinFreePercent:
		res.Status = StatusUnhealthy
		res.Error = fmt.Sprintf("%.2f%% free is below %.2f%%", freePercent, c.MinFreePercent)
	case c.MinFreePercent <= 0 && c.MinFreeBytes > 0 && free < c.MinFreeBytes:
		res.Status = StatusUnhealthy
		res.Error = fmt.Sprintf("%d bytes free is below %d", free, c.MinFreeBytes)
	default:
		res.Status = StatusHealthy
		res.Message = fmt.Sprintf("%.2f%% free", freePercent)
	}
	return res
}

// MemoryCheck degrades when the Go heap exceeds MaxHeapBytes.
type MemoryCheck struct {
	MaxHeapBytes uint64
}

// Check implements Checker.
func (c *MemoryCheck) Check(_ context.Context) Result {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	res := Result{Metadata: map[string]any{
		"heap_alloc_bytes": m.HeapAlloc,
		"sys_bytes":        m.Sys,
		"goroutines":       runtime.NumGoroutine(),
	}}
	if c.MaxHeapBytes > 0 && m.HeapAlloc > c.MaxHeapBytes {
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("heap %d bytes exceeds %d", m.HeapAlloc, c.MaxHeapBytes)
		return res
	}
	res.Status = StatusHealthy
	return res
}

// Names returns the registered check names, sorted.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
