package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainpulse"

// Set bundles every metric group the gateway registers.
type Set struct {
	Gateway   *GatewayMetrics
	RateLimit *RateLimitMetrics
	Redis     *RedisMetrics
	Pipeline  *PipelineMetrics
	Database  *DatabaseMetrics
	HTTP      *HTTPMetrics
}

// NewSet creates all metric groups on reg.
func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		Gateway:   NewGatewayMetrics(reg),
		RateLimit: NewRateLimitMetrics(reg),
		Redis:     NewRedisMetrics(reg),
		Pipeline:  NewPipelineMetrics(reg),
		Database:  NewDatabaseMetrics(reg),
		HTTP:      NewHTTPMetrics(reg),
	}
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves the registry's metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
