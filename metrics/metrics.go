// Package metrics holds the Prometheus collectors of the tracker. They are
// registered on the default registry and served by the API at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overtime",
		Subsystem: "report",
		Name:      "runs_total",
		Help:      "The total number of monthly report runs by mode and final status",
	}, []string{"mode", "status"})

	ReportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overtime",
		Subsystem: "report",
		Name:      "run_duration_seconds",
		Help:      "Duration of monthly report runs",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"mode"})

	ReportRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "overtime",
		Subsystem: "report",
		Name:      "rows",
		Help:      "Rows written by successful report runs",
		Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
	})

	ExportOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overtime",
		Subsystem: "export",
		Name:      "operations_total",
		Help:      "The total number of real-time export operations on per-user sheets",
	}, []string{"op", "result"})

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overtime",
		Subsystem: "tasks",
		Name:      "enqueued_total",
		Help:      "The total number of tasks enqueued",
	}, []string{"task"})

	TaskAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overtime",
		Subsystem: "tasks",
		Name:      "attempts_total",
		Help:      "The total number of task dispatch attempts by outcome",
	}, []string{"task", "outcome"})

	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overtime",
		Subsystem: "tasks",
		Name:      "in_flight",
		Help:      "Tasks currently being dispatched",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overtime",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "The total number of API requests by route pattern and status",
	}, []string{"method", "route", "code"})
)
