package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Kinga.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Execution metrics.
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	OutputBytes       prometheus.Histogram

	// Admission metrics.
	PolicyRejectionsTotal   *prometheus.CounterVec
	CapacityRejectionsTotal prometheus.Counter
	SpawnFailuresTotal      prometheus.Counter

	// System metrics.
	ActiveProcesses prometheus.Gauge
}

// Execution status label values.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusKilled   = "killed"
	StatusTimedOut = "timed_out"
)

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinga",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total completed sandbox executions.",
		}, []string{"status"}),

		ExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kinga",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		OutputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kinga",
			Subsystem: "sandbox",
			Name:      "output_bytes",
			Help:      "Combined stdout+stderr bytes per execution, after truncation.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),

		PolicyRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinga",
			Subsystem: "sandbox",
			Name:      "policy_rejections_total",
			Help:      "Commands rejected by the validator, by rule.",
		}, []string{"rule"}),

		CapacityRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kinga",
			Subsystem: "sandbox",
			Name:      "capacity_rejections_total",
			Help:      "Requests rejected because the concurrency cap was saturated.",
		}),

		SpawnFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kinga",
			Subsystem: "sandbox",
			Name:      "spawn_failures_total",
			Help:      "Executions that failed before the process started.",
		}),

		ActiveProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kinga",
			Subsystem: "sandbox",
			Name:      "active_processes",
			Help:      "Processes currently supervised by the sandbox.",
		}),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.OutputBytes,
		m.PolicyRejectionsTotal,
		m.CapacityRejectionsTotal,
		m.SpawnFailuresTotal,
		m.ActiveProcesses,
	)
	return m
}
