package metrics

import "github.com/prometheus/client_golang/prometheus"

// DatabaseMetrics holds Prometheus metrics for the Postgres adapter.
type DatabaseMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
	BreakerState  prometheus.Gauge
}

// NewDatabaseMetrics creates and registers database metrics on the given registry.
func NewDatabaseMetrics(reg prometheus.Registerer) *DatabaseMetrics {
	m := &DatabaseMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds, by statement kind.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"query"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of failed database queries, by statement kind.",
		}, []string{"query"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "circuit_breaker_state",
			Help:      "API key store circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.QueryDuration, m.QueryErrors, m.BreakerState)
	return m
}
