// Package metrics provides metrics collection for the sync pipeline.
// Components record through the Collector interface; the serve command
// exposes a Prometheus implementation on /metrics.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Collector is the interface for collecting and reporting metrics.
type Collector interface {
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	GaugeSet(name string, value float64, labels ...string)

	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler
}

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string
	Type    MetricType
	Help    string
	Labels  []string
	Buckets []float64 // For histograms
}

// Pipeline metrics.
var (
	IngestRecordsTotal = MetricDefinition{
		Name:   "lakesync_ingest_records_total",
		Type:   MetricTypeCounter,
		Help:   "Export records processed, by export kind and outcome",
		Labels: []string{"kind", "status"},
	}
	UpsertsTotal = MetricDefinition{
		Name:   "lakesync_upserts_total",
		Type:   MetricTypeCounter,
		Help:   "Upsert statements executed, by table and mode (update or ignore)",
		Labels: []string{"table", "mode"},
	}
	LinkerEdgesTotal = MetricDefinition{
		Name:   "lakesync_linker_edges_total",
		Type:   MetricTypeCounter,
		Help:   "Hierarchy edges considered, by relation and outcome",
		Labels: []string{"relation", "status"},
	}
	IndexChunksTotal = MetricDefinition{
		Name:   "lakesync_index_chunks_total",
		Type:   MetricTypeCounter,
		Help:   "Bulk chunks sent to the search index, by index and outcome",
		Labels: []string{"index", "status"},
	}
	IndexDocumentsTotal = MetricDefinition{
		Name:   "lakesync_index_documents_total",
		Type:   MetricTypeCounter,
		Help:   "Documents committed to the search index",
		Labels: []string{"index"},
	}
	IndexRetriesTotal = MetricDefinition{
		Name:   "lakesync_index_retries_total",
		Type:   MetricTypeCounter,
		Help:   "Chunk retries after a failed bulk call",
		Labels: []string{"index"},
	}
	IndexChunkDuration = MetricDefinition{
		Name:    "lakesync_index_chunk_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of a committed chunk, retries included",
		Labels:  []string{"index"},
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}
	IndexPendingDocuments = MetricDefinition{
		Name:   "lakesync_index_pending_documents",
		Type:   MetricTypeGauge,
		Help:   "Rows changed since their last sync at the start of a job",
		Labels: []string{"index"},
	}
	NetworkAssetsTotal = MetricDefinition{
		Name:   "lakesync_network_assets",
		Type:   MetricTypeGauge,
		Help:   "Addresses covered by the networks of the last organization sync",
		Labels: []string{},
	}
)

// Definitions lists every pipeline metric.
func Definitions() []MetricDefinition {
	return []MetricDefinition{
		IngestRecordsTotal,
		UpsertsTotal,
		LinkerEdgesTotal,
		IndexChunksTotal,
		IndexDocumentsTotal,
		IndexRetriesTotal,
		IndexChunkDuration,
		IndexPendingDocuments,
		NetworkAssetsTotal,
	}
}

// OrNop returns c, or a NopCollector when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return &NopCollector{}
	}
	return c
}

// NopCollector is a no-op metrics collector that discards all metrics.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }

// InMemoryCollector stores metrics in memory for tests.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	var b strings.Builder
	b.WriteString(name)
	for i := 0; i+1 < len(labels); i += 2 {
		b.WriteString("," + labels[i] + "=" + labels[i+1])
	}
	return b.String()
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)] = value
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

// GetCounter returns the value of a counter.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the value of a gauge.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns all observations of a histogram.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histograms[c.key(name, labels)]
}

// Timer records elapsed time to a histogram.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer creates a new timer that will record to the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: OrNop(collector),
		name:      name,
		labels:    labels,
	}
}

// ObserveDuration records the duration since the timer was created.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
