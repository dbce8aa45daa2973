package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for workflow execution.
//
// Metrics exposed (all namespaced with "tutorflow_"):
//
//   - stage_latency_ms (histogram): stage execution duration in milliseconds,
//     labeled by stage and status (success/error). Buckets cover 1ms to 30s,
//     sized for LLM-backed stages.
//   - retries_total (counter): retrieval retry attempts by stage and reason
//     (error, empty_results, weak_signal).
//   - inflight_runs (gauge): runs currently executing.
//   - runs_total (counter): completed runs by status (success/error).
//   - checkpoint_writes_total (counter): persisted snapshots by backend.
//
// All methods are safe for concurrent use; the underlying Prometheus
// collectors handle their own synchronization.
type Metrics struct {
	stageLatency     *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	inflightRuns     prometheus.Gauge
	runsTotal        *prometheus.CounterVec
	checkpointWrites *prometheus.CounterVec
}

// NewMetrics creates and registers the workflow metrics with the given
// registry. Pass prometheus.DefaultRegisterer for the global registry, or a
// fresh prometheus.NewRegistry() for isolation (recommended in tests).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tutorflow",
			Name:      "stage_latency_ms",
			Help:      "Stage execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"stage", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorflow",
			Name:      "retries_total",
			Help:      "Cumulative retrieval retry attempts by stage and reason",
		}, []string{"stage", "reason"}),
		inflightRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tutorflow",
			Name:      "inflight_runs",
			Help:      "Number of workflow runs currently executing",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorflow",
			Name:      "runs_total",
			Help:      "Completed workflow runs by final status",
		}, []string{"status"}),
		checkpointWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorflow",
			Name:      "checkpoint_writes_total",
			Help:      "Persisted state snapshots by checkpoint backend",
		}, []string{"backend"}),
	}
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, latency time.Duration, status string) {
	m.stageLatency.WithLabelValues(stage, status).Observe(float64(latency.Milliseconds()))
}

// IncRetry increments the retry counter for a stage.
func (m *Metrics) IncRetry(stage, reason string) {
	m.retries.WithLabelValues(stage, reason).Inc()
}

// RunStarted marks a run as in flight.
func (m *Metrics) RunStarted() {
	m.inflightRuns.Inc()
}

// RunFinished marks a run as completed with the given status.
func (m *Metrics) RunFinished(status string) {
	m.inflightRuns.Dec()
	m.runsTotal.WithLabelValues(status).Inc()
}

// CheckpointWrite records one persisted snapshot.
func (m *Metrics) CheckpointWrite(backend string) {
	m.checkpointWrites.WithLabelValues(backend).Inc()
}
