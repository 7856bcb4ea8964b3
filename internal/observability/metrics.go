package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "noaa_grids"

// Metrics holds the Prometheus counters, histograms, and gauges for a grid run.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: status={done,no_zones,failed}
	PipelineRunning prometheus.Gauge
	StageDuration   *prometheus.HistogramVec // labels: stage

	// Download metrics.
	DownloadRequests *prometheus.CounterVec // labels: outcome={success,error}
	DownloadBytes    prometheus.Counter
	DownloadDuration prometheus.Histogram
	FetchRetries     prometheus.Counter
	FetchTasks       *prometheus.CounterVec // labels: outcome={success,exhausted}

	// Raster metrics.
	MosaicGroups        *prometheus.CounterVec // labels: outcome={written,failed}
	ConfidenceDurations *prometheus.CounterVec // labels: outcome={written,skipped,failed}
}

func buildMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by final status.",
		}, []string{"status"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		DownloadRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_requests_total",
			Help:      "HDSC archive download attempts by outcome.",
		}, []string{"outcome"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Archive bytes written to disk.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "HDSC archive download duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Grid task attempts that were retried after a failure.",
		}),
		FetchTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_tasks_total",
			Help:      "Grid tasks by final outcome.",
		}, []string{"outcome"}),
		MosaicGroups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mosaic_groups_total",
			Help:      "Mosaic groups by outcome.",
		}, []string{"outcome"}),
		ConfidenceDurations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confidence_durations_total",
			Help:      "Confidence-bound computations per duration by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.PipelineRunning,
		m.StageDuration,
		m.DownloadRequests,
		m.DownloadBytes,
		m.DownloadDuration,
		m.FetchRetries,
		m.FetchTasks,
		m.MosaicGroups,
		m.ConfidenceDurations,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := buildMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := buildMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
