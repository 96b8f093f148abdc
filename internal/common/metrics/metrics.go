// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TaskRunsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_runs_submitted_total",
			Help: "Total number of task runs submitted",
		},
		[]string{"task_key"},
	)

	TaskRunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_runs_completed_total",
			Help: "Total number of task runs completed, including cache hits",
		},
		[]string{"task_key", "cached"},
	)

	TaskRunsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_runs_failed_total",
			Help: "Total number of task runs that reached a failed or crashed state",
		},
		[]string{"task_key", "state", "error_code"},
	)

	TaskRunsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_runs_retried_total",
			Help: "Total number of task run attempts scheduled for retry",
		},
		[]string{"task_key"},
	)

	TaskRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "task_run_duration_seconds",
			Help: "Duration of task handler execution in seconds",
		},
		[]string{"task_key"},
	)

	TaskRunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "task_runs_active",
			Help: "Number of task runs currently executing",
		},
		[]string{"task_key"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds.",
		},
		[]string{"method", "path"},
	)
)
