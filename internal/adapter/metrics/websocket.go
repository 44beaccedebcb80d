package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics holds Prometheus metrics for connections, subscriptions and fan-out.
type GatewayMetrics struct {
	ActiveConnections   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	Evictions           prometheus.Counter
	ActiveChannels      prometheus.Gauge
	Subscriptions       prometheus.Gauge
	InboundMessages     *prometheus.CounterVec
	ClientErrors        *prometheus.CounterVec
	MessagesPublished   prometheus.Counter
	MessagesDelivered   prometheus.Counter
	MessagesDropped     prometheus.Counter
	DeliveryPanics      prometheus.Counter
	FanoutDuration      prometheus.Histogram
	WriteDuration       prometheus.Histogram
	PingFailures        prometheus.Counter
}

// NewGatewayMetrics creates and registers gateway metrics on the given registry.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "active_connections",
			Help:      "Number of live client connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Total number of accepted client connections.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections_rejected_total",
			Help:      "Total number of rejected connection attempts, by reason.",
		}, []string{"reason"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "evictions_total",
			Help:      "Total number of connections evicted for missing heartbeats.",
		}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "active_channels",
			Help:      "Number of channels with at least one subscriber.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "subscriptions",
			Help:      "Number of live channel subscriptions across all connections.",
		}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "inbound_messages_total",
			Help:      "Total number of client messages handled, by type.",
		}, []string{"type"}),
		ClientErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "client_errors_total",
			Help:      "Total number of error replies sent to clients, by kind.",
		}, []string{"kind"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to the local router.",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "messages_delivered_total",
			Help:      "Total number of messages enqueued to subscribers.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped because a connection's outbound queue was full.",
		}),
		DeliveryPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "delivery_panics_total",
			Help:      "Total number of recovered panics during per-connection delivery.",
		}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "fanout_duration_seconds",
			Help:      "Duration of one channel fan-out in seconds.",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "write_duration_seconds",
			Help:      "Duration of a single transport write in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "ping_failures_total",
			Help:      "Total number of failed keepalive pings.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections, m.ConnectionsTotal, m.ConnectionsRejected, m.Evictions,
		m.ActiveChannels, m.Subscriptions, m.InboundMessages, m.ClientErrors,
		m.MessagesPublished, m.MessagesDelivered, m.MessagesDropped, m.DeliveryPanics,
		m.FanoutDuration, m.WriteDuration, m.PingFailures,
	)
	return m
}
