// Package metrics exposes Prometheus metrics for tidepool pools.
//
// # Overview
//
// A Collector owns one set of metric vectors registered on a
// prometheus.Registerer. Each pool gets a PoolMetrics view bound to its
// name and storage kind:
//
//	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
//	if err != nil {
//	    return err
//	}
//	p, err := kv.NewPool(kv.NewStore(), 8, pool.WithMetrics(collector.ForPool("sessions", "kv")))
//
// # Metric Types
//
// Gauge: idle, active and waiting connections per pool.
// Counter: acquisitions (by source), canceled waits, finished transactions (by outcome).
// Histogram: time spent queued for a connection.
//
// A nil *PoolMetrics is valid and records nothing, so pools built without
// metrics carry no overhead beyond a nil check.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tidepool"

// Acquisition sources.
const (
	SourceCreated = "created"
	SourceIdle    = "idle"
	SourceHandoff = "handoff"
)

// Transaction outcomes.
const (
	OutcomeCommit   = "commit"
	OutcomeRollback = "rollback"
	OutcomeCanceled = "canceled"
)

// Collector holds the metric vectors shared by every pool registered on
// the same Registerer.
type Collector struct {
	idleConnections   *prometheus.GaugeVec     // Idle connections
	activeConnections *prometheus.GaugeVec     // Connections checked out
	waitingRequests   *prometheus.GaugeVec     // Queued Conn requests
	acquisitions      *prometheus.CounterVec   // Successful acquisitions by source
	canceledWaits     *prometheus.CounterVec   // Waiters whose context ended first
	transactions      *prometheus.CounterVec   // Finished transactions by outcome
	waitDuration      *prometheus.HistogramVec // Time spent in the waiter queue
}

// NewCollector creates and registers the pool metric vectors on reg.
// Registering twice on the same Registerer fails.
func NewCollector(reg prometheus.Registerer) (c *Collector, err error) {
	defer func() {
		// promauto panics on registration conflicts; surface it as an error.
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	factory := promauto.With(reg)
	labels := []string{"pool", "kind"}

	return &Collector{
		idleConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_connections",
			Help:      "Number of idle connections held by the pool",
		}, labels),
		activeConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active_connections",
			Help:      "Number of connections currently checked out",
		}, labels),
		waitingRequests: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "waiting_requests",
			Help:      "Number of connection requests queued at capacity",
		}, labels),
		acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquisitions_total",
			Help:      "Connections handed out, by source (created, idle, handoff)",
		}, append(labels, "source")),
		canceledWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "canceled_waits_total",
			Help:      "Queued connection requests abandoned because their context ended",
		}, labels),
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "finished_total",
			Help:      "Transactions finished, by outcome (commit, rollback, canceled)",
		}, append(labels, "outcome")),
		waitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "wait_duration_seconds",
			Help:      "Time queued connection requests spent waiting",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, labels),
	}, nil
}

// ForPool returns the metrics view for one pool.
func (c *Collector) ForPool(name, kind string) *PoolMetrics {
	l := prometheus.Labels{"pool": name, "kind": kind}
	return &PoolMetrics{
		idle:         c.idleConnections.With(l),
		active:       c.activeConnections.With(l),
		waiting:      c.waitingRequests.With(l),
		acquisitions: c.acquisitions.MustCurryWith(l),
		canceled:     c.canceledWaits.With(l),
		transactions: c.transactions.MustCurryWith(l),
		wait:         c.waitDuration.With(l),
	}
}

// PoolMetrics records metrics for a single pool. All methods are safe on a
// nil receiver.
type PoolMetrics struct {
	idle         prometheus.Gauge
	active       prometheus.Gauge
	waiting      prometheus.Gauge
	acquisitions *prometheus.CounterVec
	canceled     prometheus.Counter
	transactions *prometheus.CounterVec
	wait         prometheus.Observer
}

// SetOccupancy updates the idle, active and waiting gauges.
func (m *PoolMetrics) SetOccupancy(idle, active, waiting int) {
	if m == nil {
		return
	}
	m.idle.Set(float64(idle))
	m.active.Set(float64(active))
	m.waiting.Set(float64(waiting))
}

// Acquired counts a connection handed out from source.
func (m *PoolMetrics) Acquired(source string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(source).Inc()
}

// Waited records how long a served or abandoned request was queued.
func (m *PoolMetrics) Waited(d time.Duration) {
	if m == nil {
		return
	}
	m.wait.Observe(d.Seconds())
}

// WaitCanceled counts a queued request abandoned by its context.
func (m *PoolMetrics) WaitCanceled() {
	if m == nil {
		return
	}
	m.canceled.Inc()
}

// TxnFinished counts a finished transaction.
func (m *PoolMetrics) TxnFinished(outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
}
