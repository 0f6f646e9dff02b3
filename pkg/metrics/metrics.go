// Package metrics exposes Prometheus instrumentation for the pipeline and
// the WebSocket session layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nestor-ai/nestor/pkg/models"
)

// Metrics owns its registry so tests can create isolated instances without
// tripping duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	responses     *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	wsConnections prometheus.Gauge
}

// New creates and registers the full metric set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nestor_pipeline_responses_total",
			Help: "Pipeline responses by terminal status.",
		}, []string{"status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nestor_action_outcomes_total",
			Help: "Executed action outcomes by status.",
		}, []string{"status"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nestor_ws_connections",
			Help: "Currently open WebSocket connections.",
		}),
	}

	m.registry.MustRegister(
		m.responses,
		m.outcomes,
		m.wsConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveResponse counts one finished pipeline response.
func (m *Metrics) ObserveResponse(status models.ResponseStatus) {
	m.responses.WithLabelValues(string(status)).Inc()
}

// ObserveOutcome counts one executed action outcome.
func (m *Metrics) ObserveOutcome(status models.OutcomeStatus) {
	m.outcomes.WithLabelValues(string(status)).Inc()
}

// ConnOpened records a new WebSocket connection.
func (m *Metrics) ConnOpened() { m.wsConnections.Inc() }

// ConnClosed records a closed WebSocket connection.
func (m *Metrics) ConnClosed() { m.wsConnections.Dec() }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
