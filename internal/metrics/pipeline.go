package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline, case-matching and worker pool metrics.
var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs by descriptor and outcome",
		},
		[]string{"pipeline", "status"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of a single pipeline stage",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"role", "status"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Passage retrieval duration by backend",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend", "status"},
	)

	CaseMatchBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "casematch_batches_total",
			Help:      "Case-matching batches by outcome",
		},
		[]string{"status"}, // "ok" / "error"
	)

	WorkpoolInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workpool_inflight",
			Help:      "Heavy requests currently holding a worker slot",
		},
	)

	WorkpoolQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workpool_queued",
			Help:      "Heavy requests waiting for a worker slot",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		PipelineRunsTotal,
		PipelineStageDuration,
		RetrievalDuration,
		CaseMatchBatchesTotal,
		WorkpoolInflight,
		WorkpoolQueued,
	)
	pipelineMetricsRegistered = true
}
