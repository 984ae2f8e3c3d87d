// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	EventDuration      *prometheus.HistogramVec
	BroadcastsTotal    *prometheus.CounterVec
	Connections        prometheus.Gauge
	DroppedConnections prometheus.Counter
	Tasks              prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_events_total",
				Help: "Total number of client events by event name and result.",
			},
			[]string{"event", "result"},
		),
		EventDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_event_duration_seconds",
				Help:    "Time spent applying a client event to the task store.",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"event"},
		),
		BroadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_broadcasts_total",
				Help: "Total number of broadcast events fanned out, by event name.",
			},
			[]string{"event"},
		),
		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_connections",
				Help: "Number of currently connected clients.",
			},
		),
		DroppedConnections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_dropped_connections_total",
				Help: "Connections closed by the relay because their send buffer was full.",
			},
		),
		Tasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_tasks",
				Help: "Number of tasks in the shared store.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.EventsTotal)
	reg.MustRegister(m.EventDuration)
	reg.MustRegister(m.BroadcastsTotal)
	reg.MustRegister(m.Connections)
	reg.MustRegister(m.DroppedConnections)
	reg.MustRegister(m.Tasks)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent increments the event counter.
func (m *Metrics) RecordEvent(event, result string) {
	m.EventsTotal.WithLabelValues(event, result).Inc()
}

// ObserveDuration records how long an event took to apply.
func (m *Metrics) ObserveDuration(event string, seconds float64) {
	m.EventDuration.WithLabelValues(event).Observe(seconds)
}

// RecordBroadcast counts one fan-out of event.
func (m *Metrics) RecordBroadcast(event string) {
	m.BroadcastsTotal.WithLabelValues(event).Inc()
}

// RecordDropped counts a connection closed as a slow consumer.
func (m *Metrics) RecordDropped() {
	m.DroppedConnections.Inc()
}

// SetConnections sets the connected client count.
func (m *Metrics) SetConnections(count int) {
	m.Connections.Set(float64(count))
}

// SetTasks sets the task count.
func (m *Metrics) SetTasks(count int) {
	m.Tasks.Set(float64(count))
}
