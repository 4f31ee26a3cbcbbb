package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors for one feed client instance. A nil
// *Metrics is valid and turns every method into a no-op, so components
// can be wired without metrics in tests.
type Metrics struct {
	reg *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	decodeErrors    prometheus.Counter
	reconnects      prometheus.Counter
	droppedEvents   *prometheus.CounterVec
	consumerPanics  *prometheus.CounterVec
	connectionState prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry, so
// multiple feed clients can coexist in one process.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_events_total",
			Help: "Decoded events dispatched, by channel kind.",
		}, []string{"channel"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_decode_errors_total",
			Help: "Frames skipped because they could not be decoded.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Reconnection attempts after a transport failure.",
		}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_dropped_events_total",
			Help: "Events dropped from full consumer queues, by consumer.",
		}, []string{"consumer"}),
		consumerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_consumer_panics_total",
			Help: "Panics recovered inside consumer callbacks, by consumer.",
		}, []string{"consumer"}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feed_connection_state",
			Help: "Connection state: 0 disconnected, 1 connecting, 2 subscribing, 3 live, 4 reconnecting.",
		}),
	}

	m.reg.MustRegister(
		m.eventsTotal,
		m.decodeErrors,
		m.reconnects,
		m.droppedEvents,
		m.consumerPanics,
		m.connectionState,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) IncEvent(channel string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) IncDroppedEvent(consumer string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(consumer).Inc()
}

func (m *Metrics) IncConsumerPanic(consumer string) {
	if m == nil {
		return
	}
	m.consumerPanics.WithLabelValues(consumer).Inc()
}

// SetConnectionState records the numeric connection state.
func (m *Metrics) SetConnectionState(v float64) {
	if m == nil {
		return
	}
	m.connectionState.Set(v)
}
