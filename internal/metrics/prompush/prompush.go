// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Batch jobs have nothing for Prometheus to scrape, so collected metrics are
// pushed to a Pushgateway at the end of the run instead of being exposed on
// an HTTP endpoint. All Prometheus-specific dependencies live here; the rest
// of the project depends only on metrics.Backend.
package prompush

import (
	"fmt"

	"orderdwh/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stageCounter  *prometheus.CounterVec // "dwh_stage_total"
	stageDuration *prometheus.SummaryVec // "dwh_stage_duration_seconds"

	partitionCounter  *prometheus.CounterVec // "dwh_partition_total"
	partitionDuration *prometheus.SummaryVec // "dwh_partition_duration_seconds"

	rowCounter   *prometheus.CounterVec // "dwh_rows_total"
	batchCounter prometheus.Counter     // "dwh_batches_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often same as pipeline job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "orderdwh"
	}

	reg := prometheus.NewRegistry()

	// job is the Pushgateway grouping key, so it is not a dynamic label here.
	stageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dwh_stage_total",
			Help: "Total number of pipeline stage executions, partitioned by stage and status.",
		},
		[]string{"stage", "status"},
	)
	stageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "dwh_stage_duration_seconds",
			Help:       "Duration of pipeline stages in seconds, partitioned by stage and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stage", "status"},
	)

	partitionCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dwh_partition_total",
			Help: "Partition-scoped statement outcomes, partitioned by partition and status.",
		},
		[]string{"partition", "status"},
	)
	partitionDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "dwh_partition_duration_seconds",
			Help:       "Duration of partition-scoped statements in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"partition", "status"},
	)

	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dwh_rows_total",
			Help: "Row-level counts per kind (parsed, skipped, repaired_hour, inserted, etc.).",
		},
		[]string{"kind"},
	)

	batchCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dwh_batches_total",
			Help: "Total number of insert batches flushed by this job.",
		},
	)

	for _, c := range []prometheus.Collector{
		stageCounter, stageDuration, partitionCounter, partitionDuration, rowCounter, batchCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:        gatewayURL,
		jobName:           jobName,
		reg:               reg,
		stageCounter:      stageCounter,
		stageDuration:     stageDuration,
		partitionCounter:  partitionCounter,
		partitionDuration: partitionDuration,
		rowCounter:        rowCounter,
		batchCounter:      batchCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "dwh_stage_total":
		b.stageCounter.WithLabelValues(labels["stage"], labels["status"]).Add(delta)

	case "dwh_partition_total":
		b.partitionCounter.WithLabelValues(labels["partition"], labels["status"]).Add(delta)

	case "dwh_rows_total":
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)

	case "dwh_batches_total":
		b.batchCounter.Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case "dwh_stage_duration_seconds":
		b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(value)
	case "dwh_partition_duration_seconds":
		b.partitionDuration.WithLabelValues(labels["partition"], labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
