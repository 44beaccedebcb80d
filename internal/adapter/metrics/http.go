package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

// HTTPMetrics tracks requests to the admin HTTP surface.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of admin HTTP requests in seconds, by route.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"method", "route"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of admin HTTP requests, by route and status code.",
		}, []string{"method", "route", "code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of admin HTTP requests currently being served.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

// Middleware records every request whose route skip does not exclude.
// Routes are echo's patterns, so path parameters do not inflate cardinality.
func (m *HTTPMetrics) Middleware(skip func(route string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			if skip != nil && skip(route) {
				return next(c)
			}

			m.InFlightGauge.Inc()
			start := time.Now()
			err := next(c)
			m.InFlightGauge.Dec()

			method := c.Request().Method
			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(responseCode(c, err))).Inc()
			return err
		}
	}
}

// responseCode is the status the client will see. An error that has not
// been rendered yet is turned into a response by echo after the middleware
// returns.
func responseCode(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	if httpErr, ok := errors.AsType[*echo.HTTPError](err); ok {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}
