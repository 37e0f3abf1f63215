package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderdwh/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec for assertions.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{
			name:       "missing gateway URL returns error",
			jobName:    "dwh-load",
			gatewayURL: "",
			wantErr:    true,
		},
		{
			name:        "empty job name uses default",
			jobName:     "",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "orderdwh",
		},
		{
			name:        "explicit job name is preserved",
			jobName:     "nightly-load",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "nightly-load",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q, %q) error = nil, want non-nil", tt.jobName, tt.gatewayURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.gatewayURL != tt.gatewayURL {
				t.Fatalf("backend.gatewayURL = %q, want %q", b.gatewayURL, tt.gatewayURL)
			}

			// Metric label cardinality: these calls should not panic.
			b.stageCounter.WithLabelValues("facts", "success").Add(1)
			b.stageDuration.WithLabelValues("facts", "failure").Observe(0.5)
			b.partitionCounter.WithLabelValues("p3", "success").Add(1)
			b.rowCounter.WithLabelValues("inserted").Add(1)
			b.batchCounter.Add(1)
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("orderdwh", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter("dwh_stage_total", 3, metrics.Labels{"stage": "dimensions", "status": "success"})
	b.IncCounter("dwh_rows_total", 5, metrics.Labels{"kind": "inserted"})
	b.IncCounter("dwh_partition_total", 1, metrics.Labels{"partition": "p_max", "status": "failure"})
	b.IncCounter("dwh_batches_total", 2, metrics.Labels{})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	if got := readCounterValue(t, b.stageCounter.WithLabelValues("dimensions", "success")); got != 3 {
		t.Fatalf("stageCounter value = %v, want 3", got)
	}
	if got := readCounterValue(t, b.rowCounter.WithLabelValues("inserted")); got != 5 {
		t.Fatalf("rowCounter value = %v, want 5", got)
	}
	if got := readCounterValue(t, b.partitionCounter.WithLabelValues("p_max", "failure")); got != 1 {
		t.Fatalf("partitionCounter value = %v, want 1", got)
	}
	if got := readCounterValue(t, b.batchCounter); got != 2 {
		t.Fatalf("batchCounter value = %v, want 2", got)
	}
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("orderdwh", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.ObserveHistogram("dwh_stage_duration_seconds", 1.5, metrics.Labels{"stage": "users", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"stage": "users", "status": "success"})

	count, sum := readSummaryCountSum(t, b.stageDuration, "users", "success")
	if count != 1 {
		t.Fatalf("summary sample count = %d, want 1", count)
	}
	if sum != 1.5 {
		t.Fatalf("summary sample sum = %v, want 1.5", sum)
	}
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway URL by sending an HTTP request to the gateway.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}

	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)

		reqCh <- pushRequestInfo{
			method:  r.Method,
			path:    r.URL.Path,
			bodyLen: len(body),
		}
		// Pushgateway typically returns 202 Accepted.
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("dwh-load", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	// Add some data so the push body is non-empty.
	b.IncCounter("dwh_stage_total", 1, metrics.Labels{"stage": "facts", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}
	if got.method == "" || got.path == "" {
		t.Fatalf("push request missing method/path: %+v", got)
	}
	if got.bodyLen == 0 {
		t.Fatalf("push request body length = 0, want > 0")
	}
}
