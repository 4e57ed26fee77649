// Package obsmetrics is the supplementary Prometheus metrics registrar:
// a single place that declares counters/gauges for every component in
// one registry and exposes it over HTTP. No component outside this
// package increments or sets these series, so they read zero. Grounded on the corpus's
// github.com/prometheus/client_golang usage pattern (other_examples'
// heminetwork tbc.go registers a prometheus.Collector slice against a
// custom HTTP server) generalized to promhttp's standard handler and
// promauto's registration-on-construction idiom, since EdgeCoder has no
// counterpart to deucalion's bespoke server.
package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wires one Prometheus registry shared across components.
type Registry struct {
	reg *prometheus.Registry

	TasksRouted      *prometheus.CounterVec
	RouteLatencySecs *prometheus.HistogramVec
	GossipEnvelopes  *prometheus.CounterVec
	GossipPeers      prometheus.Gauge
	CreditsAccrued   prometheus.Counter
	SwarmQueueDepth  prometheus.Gauge
	BlacklistEvents  *prometheus.CounterVec
	AnomalyFirings   *prometheus.CounterVec
}

// New constructs a Registry with every component metric pre-registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		TasksRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecoder",
			Subsystem: "routing",
			Name:      "tasks_routed_total",
			Help:      "Tasks routed, labeled by destination route.",
		}, []string{"route"}),
		RouteLatencySecs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgecoder",
			Subsystem: "routing",
			Name:      "route_duration_seconds",
			Help:      "Time spent routing a task to completion, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		GossipEnvelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecoder",
			Subsystem: "gossip",
			Name:      "envelopes_total",
			Help:      "Gossip envelopes processed, labeled by outcome.",
		}, []string{"outcome"}),
		GossipPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgecoder",
			Subsystem: "gossip",
			Name:      "known_peers",
			Help:      "Peers currently known to the gossip manager.",
		}),
		CreditsAccrued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "edgecoder",
			Subsystem: "credit",
			Name:      "accrued_total",
			Help:      "Total credits accrued across all contribution reports.",
		}),
		SwarmQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgecoder",
			Subsystem: "swarm",
			Name:      "queue_depth",
			Help:      "Subtasks currently queued awaiting an agent.",
		}),
		BlacklistEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecoder",
			Subsystem: "blacklist",
			Name:      "events_total",
			Help:      "Blacklist ledger events appended, labeled by reason code.",
		}, []string{"reason"}),
		AnomalyFirings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecoder",
			Subsystem: "anomaly",
			Name:      "rule_firings_total",
			Help:      "Behavior rule firings, labeled by rule id and severity.",
		}, []string{"rule", "severity"}),
	}
}

// Handler exposes the registry in the standard Prometheus exposition
// format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
