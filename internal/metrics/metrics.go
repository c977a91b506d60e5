// Package metrics exports session metrics to Prometheus.
//
// A *Metrics value implements the observer interfaces of the registry,
// the router and the error classifier. All methods are safe on a nil
// receiver, so components can run without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/tws-session/internal/connection"
)

const namespace = "tws_session"

// Metrics holds the session collectors.
type Metrics struct {
	registry *prometheus.Registry

	status        prometheus.Gauge
	reconnects    prometheus.Counter
	operations    *prometheus.GaugeVec
	events        *prometheus.CounterVec
	faults        *prometheus.CounterVec
	unknownEvents *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry, along
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Session status (0 disconnected, 1 connecting, 2 connected, 3 disconnecting, 4 reconnect waiting).",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect cycles started.",
		}),
		operations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_live",
			Help:      "Live registered operations by kind.",
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events by type.",
		}, []string{"type"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Terminal faults by severity.",
		}, []string{"severity"}),
		unknownEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_events_total",
			Help:      "Events addressed to no live operation, by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.status,
		m.reconnects,
		m.operations,
		m.events,
		m.faults,
		m.unknownEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatusChanged records a session status transition. A reconnect cycle
// starts when ReconnectWaiting follows a teardown; retries inside the cycle
// come from Connecting and are not counted again.
func (m *Metrics) StatusChanged(from, to connection.Status) {
	if m == nil {
		return
	}
	m.status.Set(float64(to))
	if to == connection.ReconnectWaiting && from == connection.Disconnected {
		m.reconnects.Inc()
	}
}

// OperationAdded counts a registered operation.
func (m *Metrics) OperationAdded(kind string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind).Inc()
}

// OperationRemoved counts an operation that reached its outcome or was
// cancelled.
func (m *Metrics) OperationRemoved(kind string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind).Dec()
}

// UnknownEvent counts an event with no live operation.
func (m *Metrics) UnknownEvent(kind string) {
	if m == nil {
		return
	}
	m.unknownEvents.WithLabelValues(kind).Inc()
}

// EventReceived counts an inbound event.
func (m *Metrics) EventReceived(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

// FaultClassified counts a classified terminal fault.
func (m *Metrics) FaultClassified(severity string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(severity).Inc()
}
