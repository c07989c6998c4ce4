package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus instruments for the bridge, threshold
// engine and client gateway.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived   prometheus.Counter
	MessagesDropped    prometheus.Counter
	PublishTotal       prometheus.Counter
	PublishFailures    prometheus.Counter
	AlertsRecorded     *prometheus.CounterVec
	CommandsDispatched *prometheus.CounterVec
	ClientsConnected   prometheus.Gauge
}

// New creates and registers all instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farm_server",
			Name:      "bridge_messages_received_total",
			Help:      "Inbound broker messages accepted for dispatch.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farm_server",
			Name:      "bridge_messages_dropped_total",
			Help:      "Inbound broker messages dropped (malformed payload or full queue).",
		}),
		PublishTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farm_server",
			Name:      "bridge_publish_total",
			Help:      "Broker publish attempts.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farm_server",
			Name:      "bridge_publish_failures_total",
			Help:      "Broker publish attempts that failed or timed out.",
		}),
		AlertsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farm_server",
			Name:      "threshold_alerts_total",
			Help:      "Alerts recorded by the threshold engine.",
		}, []string{"sensor_type", "level"}),
		CommandsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farm_server",
			Name:      "commands_dispatched_total",
			Help:      "Commands dispatched to devices.",
		}, []string{"source", "result"}),
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "farm_server",
			Name:      "gateway_clients_connected",
			Help:      "Currently connected websocket clients.",
		}),
	}

	m.registry.MustRegister(
		m.MessagesReceived,
		m.MessagesDropped,
		m.PublishTotal,
		m.PublishFailures,
		m.AlertsRecorded,
		m.CommandsDispatched,
		m.ClientsConnected,
	)

	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
