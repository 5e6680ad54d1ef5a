package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wishlist"

// Metrics holds every collector the service exports. Each instance owns its
// own registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Reservations       *prometheus.CounterVec
	Contributions      *prometheus.CounterVec
	IdempotencyReplays prometheus.Counter
	BroadcastSends     *prometheus.CounterVec
	RelayMessages      *prometheus.CounterVec
	WSConnections      prometheus.Gauge
	WSRooms            prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reserve and cancel attempts by outcome.",
		}, []string{"outcome"}),
		Contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contributions_total",
			Help:      "Contribution attempts by outcome.",
		}, []string{"outcome"}),
		IdempotencyReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_replays_total",
			Help:      "Contribution requests answered from the idempotency cache.",
		}),
		BroadcastSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_sends_total",
			Help:      "Per-socket event sends by result.",
		}, []string{"result"}),
		RelayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Cross-process relay traffic by direction and result.",
		}, []string{"direction", "result"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections in this process.",
		}),
		WSRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_rooms",
			Help:      "Wishlist rooms with at least one connection in this process.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Reservations,
		m.Contributions,
		m.IdempotencyReplays,
		m.BroadcastSends,
		m.RelayMessages,
		m.WSConnections,
		m.WSRooms,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
