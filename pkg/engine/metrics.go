package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess        = "success"
	statusFailure        = "failure"
	statusNotImplemented = "notimplemented"
)

type metrics struct {
	queries *prometheus.CounterVec

	planning  prometheus.Histogram
	execution prometheus.Histogram
	rowsOut   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		queries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pickyappend_engine_queries_total",
			Help: "Total number of executed queries by status",
		}, []string{"status"}),

		planning: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "pickyappend_engine_planning_duration_seconds",
			Help: "Time spent building and optimizing physical plans",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
		execution: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "pickyappend_engine_execution_duration_seconds",
			Help: "Time spent executing physical plans",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
		rowsOut: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pickyappend_engine_rows_returned_total",
			Help: "Total number of rows returned by executed queries",
		}),
	}
}
