package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the hub's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	clients       prometheus.Gauge
	subscriptions prometheus.Gauge
	delivered     prometheus.Counter
	dropped       prometheus.Counter
	invalid       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wardwatch", Subsystem: "realtime",
			Name: "clients", Help: "Connected realtime clients",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wardwatch", Subsystem: "realtime",
			Name: "subscriptions", Help: "Joined realtime channels across all clients",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardwatch", Subsystem: "realtime",
			Name: "frames_delivered_total", Help: "Change frames queued to clients",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardwatch", Subsystem: "realtime",
			Name: "frames_dropped_total", Help: "Change frames dropped because a client send buffer was full",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardwatch", Subsystem: "realtime",
			Name: "notifications_invalid_total", Help: "Database notifications that could not be decoded",
		}),
	}
	reg.MustRegister(m.clients, m.subscriptions, m.delivered, m.dropped, m.invalid)
	return m
}

func (m *Metrics) clientDelta(d float64) {
	if m != nil {
		m.clients.Add(d)
	}
}

func (m *Metrics) subscriptionDelta(d float64) {
	if m != nil {
		m.subscriptions.Add(d)
	}
}

func (m *Metrics) deliveredInc() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *Metrics) droppedInc() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) invalidInc() {
	if m != nil {
		m.invalid.Inc()
	}
}
