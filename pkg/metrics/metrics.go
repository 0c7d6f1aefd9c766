package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instruments for ApplyBot, registered with the default registry
// via promauto.
var (
	// ApplicationsTotal counts per-vacancy outcomes across all runs.
	ApplicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "applybot",
			Subsystem: "applications",
			Name:      "total",
			Help:      "Total number of application attempts by outcome",
		},
		[]string{"status"},
	)

	// RunsTotal counts pipeline runs by terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "applybot",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of auto-apply runs by terminal status",
		},
		[]string{"status"},
	)

	// RunDuration tracks how long a full run takes.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "applybot",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of auto-apply runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
		},
	)

	// SchedulerLag measures delay between the cron instant and actual start.
	SchedulerLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "applybot",
			Subsystem: "scheduler",
			Name:      "lag_seconds",
			Help:      "Delay between scheduled time and actual run start",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// CatchupRuns counts missed-run recoveries fired at startup.
	CatchupRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "applybot",
			Subsystem: "scheduler",
			Name:      "catchup_runs_total",
			Help:      "Total number of missed runs recovered at startup",
		},
	)

	// AutoRepliesTotal counts generated auto-replies by whether they were sent.
	AutoRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "applybot",
			Subsystem: "autoreply",
			Name:      "total",
			Help:      "Total number of generated auto-replies",
		},
		[]string{"sent"},
	)

	// HTTPRequestDuration tracks inbound shell request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "applybot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RecordApplication records one per-vacancy outcome.
func RecordApplication(status string) {
	ApplicationsTotal.WithLabelValues(status).Inc()
}

// RecordRun records a finished run.
func RecordRun(status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(durationSeconds)
}
