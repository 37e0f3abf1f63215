// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the warehouse pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern (storage.Repository), so the
//     rest of the codebase depends only on this interface while concrete
//     metric systems stay isolated in subpackages.
//
// The primary use case is instrumentation of pipeline stages (dimensions,
// facts, metrics recomputation, backfill, user dimension) without coupling
// the core logic to Prometheus or Datadog specifically.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage is a convenience for the common pattern:
// measure latency + success/failure per pipeline stage.
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"status": status,
	}

	backend.IncCounter("dwh_stage_total", 1, lbls)
	backend.ObserveHistogram("dwh_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given job and kind.
//
// Typical kinds mirror the load summary fields, e.g.:
//   - "parsed"
//   - "skipped"
//   - "filtered"
//   - "repaired_hour"
//   - "repaired_dow"
//   - "clipped"
//   - "inserted"
//   - "updated"
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("dwh_rows_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments a batch-level counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("dwh_batches_total", float64(delta), Labels{
		"job": job,
	})
}

// RecordPartition records the outcome of a partition-scoped statement, so a
// dashboard can tell a clean run from one that left partitions behind.
func RecordPartition(job, partition string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":       job,
		"partition": partition,
		"status":    status,
	}
	backend.IncCounter("dwh_partition_total", 1, lbls)
	backend.ObserveHistogram("dwh_partition_duration_seconds", d.Seconds(), lbls)
}
