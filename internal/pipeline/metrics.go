package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcome label values.
const (
	OutcomeDone      = "done"
	OutcomeInvalid   = "invalid_input"
	OutcomeSession   = "session_failed"
	OutcomeListing   = "listing_failed"
	OutcomeNoFiles   = "no_files"
	OutcomePersist   = "persist_failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the pipeline's Prometheus collectors.
//
// Metrics:
//   - repoctx_runs_total{outcome} - runs by terminal outcome
//   - repoctx_files_fetched_total - files appended to a document
//   - repoctx_files_failed_total - files reported as warnings
//   - repoctx_secrets_redacted_total - secrets replaced by the scrubber
//   - repoctx_run_duration_seconds - wall time per run
//   - repoctx_batch_duration_seconds - wall time per fetch batch
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	FilesFetched    prometheus.Counter
	FilesFailed     prometheus.Counter
	SecretsRedacted prometheus.Counter
	RunDuration     prometheus.Histogram
	BatchDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repoctx",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		FilesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "repoctx",
			Name:      "files_fetched_total",
			Help:      "Total number of files fetched and assembled",
		}),
		FilesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "repoctx",
			Name:      "files_failed_total",
			Help:      "Total number of files that could not be fetched",
		}),
		SecretsRedacted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "repoctx",
			Name:      "secrets_redacted_total",
			Help:      "Total number of secrets redacted from fetched files",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repoctx",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repoctx",
			Name:      "batch_duration_seconds",
			Help:      "Duration of fetch batches in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) recordRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) fileFetched() {
	if m != nil {
		m.FilesFetched.Inc()
	}
}

func (m *Metrics) fileFailed() {
	if m != nil {
		m.FilesFailed.Inc()
	}
}

func (m *Metrics) redacted(n int) {
	if m != nil && n > 0 {
		m.SecretsRedacted.Add(float64(n))
	}
}

func (m *Metrics) batchObserver() prometheus.Observer {
	if m == nil {
		return nil
	}
	return m.BatchDuration
}
