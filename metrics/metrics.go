// Package metrics provides Prometheus instrumentation for the workflow
// drivers and classifiers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reqflow"

var (
	// driverRunDuration is a histogram of driver run duration in seconds.
	driverRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "driver_run_duration_seconds",
			Help:      "Histogram of driver run duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"driver"},
	)

	// driverRunsTotal is a counter of driver runs.
	driverRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_runs_total",
			Help:      "Total number of driver runs",
		},
		[]string{"driver", "status"}, // status: success, error
	)

	// driverItemsTotal is a counter of per-item outcomes inside driver runs.
	driverItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "driver_items_total",
			Help:      "Total items handled by drivers, by outcome",
		},
		[]string{"driver", "outcome"}, // outcome: checked, matched, advanced, error
	)

	// classifierCallsTotal is a counter of classifier invocations.
	classifierCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_calls_total",
			Help:      "Total classifier calls, by workflow and outcome",
		},
		[]string{"workflow", "outcome"}, // outcome: matched, unmatched, error
	)
)

// allMetrics lists every collector for registration.
var allMetrics = []prometheus.Collector{
	driverRunDuration,
	driverRunsTotal,
	driverItemsTotal,
	classifierCallsTotal,
}

// ObserveDriverRun records one driver run and its per-item outcome counts.
func ObserveDriverRun(driver string, duration time.Duration, checked, matched, advanced, errs int, runErr error) {
	status := "success"
	if runErr != nil {
		status = "error"
	}
	driverRunsTotal.WithLabelValues(driver, status).Inc()
	driverRunDuration.WithLabelValues(driver).Observe(duration.Seconds())
	driverItemsTotal.WithLabelValues(driver, "checked").Add(float64(checked))
	driverItemsTotal.WithLabelValues(driver, "matched").Add(float64(matched))
	driverItemsTotal.WithLabelValues(driver, "advanced").Add(float64(advanced))
	driverItemsTotal.WithLabelValues(driver, "error").Add(float64(errs))
}

// ObserveClassifierCall records one classifier invocation.
func ObserveClassifierCall(workflowName string, matched bool, err error) {
	outcome := "unmatched"
	switch {
	case err != nil:
		outcome = "error"
	case matched:
		outcome = "matched"
	}
	classifierCallsTotal.WithLabelValues(workflowName, outcome).Inc()
}
