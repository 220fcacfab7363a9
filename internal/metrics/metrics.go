// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "referralnet"

// Metrics holds every collector on a private registry so tests can create
// independent instances.
type Metrics struct {
	registry *prometheus.Registry

	RPCRequests         *prometheus.CounterVec
	RPCDuration         *prometheus.HistogramVec
	RewardTransitions   *prometheus.CounterVec
	BulkFailures        *prometheus.CounterVec
	TreeBuildDuration   *prometheus.HistogramVec
	TreeSize            prometheus.Histogram
	CommissionPaid      prometheus.Counter
	ExpiredCleanupTotal prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Connect RPCs handled, by procedure and result code.",
		}, []string{"procedure", "code"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Connect RPC latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		RewardTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_transitions_total",
			Help:      "User reward status changes, by target status.",
		}, []string{"status"}),
		BulkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_user_failures_total",
			Help:      "Per-user failures during bulk reward operations.",
		}, []string{"operation"}),
		TreeBuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_build_duration_seconds",
			Help:      "Time spent building referral trees, by traversal mode.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"mode"}),
		TreeSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_nodes",
			Help:      "Members placed in built referral trees.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		CommissionPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_computed_amount_total",
			Help:      "Sum of computed commission amounts.",
		}),
		ExpiredCleanupTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_expired_by_cleanup_total",
			Help:      "Rewards moved to expired by the cleanup sweep.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RPCRequests,
		m.RPCDuration,
		m.RewardTransitions,
		m.BulkFailures,
		m.TreeBuildDuration,
		m.TreeSize,
		m.CommissionPaid,
		m.ExpiredCleanupTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRPC records one finished RPC.
func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(procedure, code).Inc()
	m.RPCDuration.WithLabelValues(procedure).Observe(d.Seconds())
}

// ObserveTree records one tree build.
func (m *Metrics) ObserveTree(mode string, nodes int, d time.Duration) {
	if m == nil {
		return
	}
	m.TreeBuildDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.TreeSize.Observe(float64(nodes))
}

// RewardTransition counts a reward entering status.
func (m *Metrics) RewardTransition(status string) {
	if m == nil {
		return
	}
	m.RewardTransitions.WithLabelValues(status).Inc()
}

// BulkFailure counts one failed user in a bulk operation.
func (m *Metrics) BulkFailure(op string) {
	if m == nil {
		return
	}
	m.BulkFailures.WithLabelValues(op).Inc()
}

// Commission adds a computed commission total.
func (m *Metrics) Commission(amount float64) {
	if m == nil {
		return
	}
	m.CommissionPaid.Add(amount)
}

// Expired counts rewards expired by a cleanup sweep.
func (m *Metrics) Expired(n int) {
	if m == nil {
		return
	}
	m.ExpiredCleanupTotal.Add(float64(n))
}
