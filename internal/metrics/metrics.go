// Package metrics instruments the connection engine with Prometheus
// counters and gauges, grounded in shockwave's buffer_pool_prometheus.go
// but registered against an explicitly constructed *prometheus.Registry
// rather than the default global one, so a process embedding govy can
// compose it with its own metrics namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/gauge the connection engine updates.
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ConnectionsTornDown *prometheus.CounterVec // label: reason

	BytesRelayed *prometheus.CounterVec // label: direction (client_to_server|server_to_client)

	RequestsTotal   *prometheus.CounterVec // label: method
	TunnelsOpened   prometheus.Counter
	InterceptsTotal prometheus.Counter

	CertsMinted prometheus.Counter
	CertsCached prometheus.Counter

	WebSocketUpgrades prometheus.Counter
}

// New constructs and registers the metric set on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "proxy", Name: "connections_accepted_total",
			Help: "Total connections accepted by all acceptors.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "govy", Subsystem: "proxy", Name: "connections_active",
			Help: "Connections currently owned by a handler.",
		}),
		ConnectionsTornDown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "proxy", Name: "connections_torn_down_total",
			Help: "Connections torn down, labeled by reason.",
		}, []string{"reason"}),
		BytesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "proxy", Name: "bytes_relayed_total",
			Help: "Bytes relayed, labeled by direction.",
		}, []string{"direction"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "proxy", Name: "requests_total",
			Help: "Requests handled, labeled by method.",
		}, []string{"method"}),
		TunnelsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "proxy", Name: "tunnels_opened_total",
			Help: "CONNECT tunnels opened.",
		}),
		InterceptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "proxy", Name: "intercepts_total",
			Help: "CONNECT tunnels upgraded to TLS interception.",
		}),
		CertsMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "tlsca", Name: "certs_minted_total",
			Help: "Leaf certificates freshly generated.",
		}),
		CertsCached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "tlsca", Name: "certs_cached_total",
			Help: "Leaf certificate lookups served from cache or disk.",
		}),
		WebSocketUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "govy", Subsystem: "web", Name: "websocket_upgrades_total",
			Help: "Successful WebSocket handshake upgrades.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsAccepted, m.ConnectionsActive, m.ConnectionsTornDown,
		m.BytesRelayed, m.RequestsTotal, m.TunnelsOpened, m.InterceptsTotal,
		m.CertsMinted, m.CertsCached, m.WebSocketUpgrades,
	)
	return m
}
