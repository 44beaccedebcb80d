package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics holds Prometheus metrics for the producer ingress, the
// event archiver and the authentication collaborators.
type PipelineMetrics struct {
	IngressReceived *prometheus.CounterVec
	ArchiveEvents   *prometheus.CounterVec
	AuthAttempts    *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers pipeline metrics on the given registry.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		IngressReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "events_total",
			Help:      "Total number of producer events received, by result.",
		}, []string{"result"}),
		ArchiveEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "events_total",
			Help:      "Total number of events handed to the archiver, by result.",
		}, []string{"result"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of authentication attempts, by method and result.",
		}, []string{"method", "result"}),
	}

	reg.MustRegister(m.IngressReceived, m.ArchiveEvents, m.AuthAttempts)
	return m
}
