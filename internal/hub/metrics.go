package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "teamchat"

// Metrics holds the prometheus collectors updated by the hub
type Metrics struct {
	Connections prometheus.Gauge
	Online      prometheus.Gauge
	Relayed     *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	Persist     prometheus.Histogram
}

// NewMetrics creates the hub collectors and registers them with reg.
// A nil reg leaves them unregistered, which suits tests that build many hubs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of live connections.",
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_identities",
			Help:      "Number of identities with at least one live connection.",
		}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Messages persisted and pushed, by scope kind.",
		}, []string{"scope"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Sends and pushes that were not delivered, by reason.",
		}, []string{"reason"}),
		Persist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_seconds",
			Help:      "Time taken to persist a message.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Connections, m.Online, m.Relayed, m.Dropped, m.Persist)
	}

	return m
}
