package metrics

import "github.com/prometheus/client_golang/prometheus"

// RateLimitMetrics holds Prometheus metrics for the sliding-window limiter.
type RateLimitMetrics struct {
	Checks        *prometheus.CounterVec
	FailOpen      prometheus.Counter
	CheckDuration prometheus.Histogram
}

// NewRateLimitMetrics creates and registers rate limiter metrics on the given registry.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	m := &RateLimitMetrics{
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "checks_total",
			Help:      "Total number of rate-limit checks, by rule and result.",
		}, []string{"rule", "result"}),
		FailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fail_open_total",
			Help:      "Total number of checks allowed because the store was unavailable.",
		}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "check_duration_seconds",
			Help:      "Duration of a single window check against the store in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
	}

	reg.MustRegister(m.Checks, m.FailOpen, m.CheckDuration)
	return m
}
