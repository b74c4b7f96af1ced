package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a container of metrics for the PickyAppend nodes of an
// executor. A nil *Metrics records nothing.
type Metrics struct {
	// registry to collect metrics as a unit.
	reg *prometheus.Registry

	rescansTotal            prometheus.Counter
	substatesConstructed    prometheus.Counter
	cacheHitsTotal          prometheus.Counter
	forcedRestartsTotal     prometheus.Counter
	explainSubstatesTotal   prometheus.Counter
	partitionsSelected      prometheus.Histogram
	substateConstructionSec prometheus.Histogram
}

// NewMetrics returns a new set of executor metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		reg: reg,

		rescansTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pickyappend_rescans_total",
			Help: "Total number of PickyAppend rescans, including the implicit first one",
		}),
		substatesConstructed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pickyappend_substates_constructed_total",
			Help: "Total number of partition substates constructed by PickyAppend plan state caches",
		}),
		cacheHitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pickyappend_cache_hits_total",
			Help: "Total number of selected partitions served by an already constructed substate",
		}),
		forcedRestartsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pickyappend_forced_restarts_total",
			Help: "Total number of cached substates restarted although none of their parameters changed",
		}),
		explainSubstatesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pickyappend_explain_substates_total",
			Help: "Total number of substates constructed only to describe a plan",
		}),

		partitionsSelected: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "pickyappend_partitions_selected",
			Help:    "Number of partitions selected per rescan",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		substateConstructionSec: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "pickyappend_substate_construction_seconds",
			Help: "Number of seconds taken to construct a partition substate",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}

// Register registers metrics to report to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error { return reg.Register(m.reg) }

// Unregister unregisters metrics from the provided Registerer.
func (m *Metrics) Unregister(reg prometheus.Registerer) { reg.Unregister(m.reg) }

func (m *Metrics) observeRescan(selected int) {
	if m == nil {
		return
	}
	m.rescansTotal.Inc()
	m.partitionsSelected.Observe(float64(selected))
}

func (m *Metrics) observeConstruction(d time.Duration) {
	if m == nil {
		return
	}
	m.substatesConstructed.Inc()
	m.substateConstructionSec.Observe(d.Seconds())
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) observeForcedRestart() {
	if m == nil {
		return
	}
	m.forcedRestartsTotal.Inc()
}

func (m *Metrics) observeExplainSubstate() {
	if m == nil {
		return
	}
	m.explainSubstatesTotal.Inc()
}
