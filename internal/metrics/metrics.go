// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from ingestion runs.
//
// A global, pluggable backend defaults to a no-op implementation, so metrics
// are always safe to call even when no real backend is configured. Concrete
// systems (Prometheus Pushgateway, Datadog) live in subpackages.
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	StepTotal    = "ingest_step_total"
	StepDuration = "ingest_step_duration_seconds"
	RowsTotal    = "ingest_rows_total"
	ChunksTotal  = "ingest_chunks_total"
)

// Row kinds for RecordRows.
const (
	RowsInserted    = "inserted"
	RowsSkipped     = "skipped"
	RowsParseErrors = "parse_errors"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error { return current().Flush() }

// RecordStep measures latency and success/failure of one run phase
// (schema, count, load, finalize).
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind.
func RecordRows(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"kind": kind})
}

// RecordChunks increments the committed-chunk counter.
func RecordChunks(delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(ChunksTotal, float64(delta), nil)
}
