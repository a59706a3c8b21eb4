package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the analysis pipeline.
type Metrics struct {
	registry              *prometheus.Registry
	DispatchesTotal       prometheus.Counter
	DispatchFailuresTotal *prometheus.CounterVec
	JobsCompletedTotal    prometheus.Counter
	JobsFailedTotal       prometheus.Counter
	HandsRemovedTotal     prometheus.Counter
	StatusCallbacksTotal  prometheus.Counter
}

// New creates and registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		DispatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_dispatches_total",
			Help: "Total number of analysis jobs dispatched",
		}),
		DispatchFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_dispatch_failures_total",
			Help: "Dispatch attempts that failed, by error kind",
		}, []string{"kind"}),
		JobsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_jobs_completed_total",
			Help: "Analysis jobs that reached success and were reconciled",
		}),
		JobsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_jobs_failed_total",
			Help: "Analysis jobs that ended in failure",
		}),
		HandsRemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_hands_removed_total",
			Help: "Duplicate hand detections removed during reconciliation",
		}),
		StatusCallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_status_callbacks_total",
			Help: "Job status callbacks received (HTTP and queue)",
		}),
	}

	registry.MustRegister(
		m.DispatchesTotal,
		m.DispatchFailuresTotal,
		m.JobsCompletedTotal,
		m.JobsFailedTotal,
		m.HandsRemovedTotal,
		m.StatusCallbacksTotal,
	)
	return m
}

// Handler exposes the registry for a /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
