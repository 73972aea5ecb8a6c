package metrics

import "github.com/prometheus/client_golang/prometheus"

// ClientMetrics holds Prometheus metrics for a realtime connection.
//
// A nil *ClientMetrics is valid and records nothing.
type ClientMetrics struct {
	FramesReceived  *prometheus.CounterVec
	FramesSent      *prometheus.CounterVec
	Dispatched      prometheus.Counter
	DecodeErrors    prometheus.Counter
	CallbackPanics  prometheus.Counter
	ConnectionState prometheus.Gauge
}

// NewClientMetrics creates and registers client metrics on the given registry.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_received_total",
			Help:      "Total number of frames received, by event.",
		}, []string{"event"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_sent_total",
			Help:      "Total number of frames written to the socket, by event.",
		}, []string{"event"}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "callbacks_dispatched_total",
			Help:      "Total number of listener callbacks invoked.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "decode_errors_total",
			Help:      "Total number of inbound frames that could not be decoded.",
		}),
		CallbackPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "callback_panics_total",
			Help:      "Total number of listener callbacks that panicked.",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connection_status",
			Help:      "Current connection status (0 disconnected, 1 connected, 2 closing, 3 closed).",
		}),
	}

	reg.MustRegister(m.FramesReceived, m.FramesSent, m.Dispatched, m.DecodeErrors, m.CallbackPanics, m.ConnectionState)
	return m
}

func (m *ClientMetrics) FrameReceived(event string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(event).Inc()
}

func (m *ClientMetrics) FrameSent(event string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(event).Inc()
}

func (m *ClientMetrics) CallbackDispatched() {
	if m == nil {
		return
	}
	m.Dispatched.Inc()
}

func (m *ClientMetrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *ClientMetrics) CallbackPanic() {
	if m == nil {
		return
	}
	m.CallbackPanics.Inc()
}

func (m *ClientMetrics) SetStatus(status int32) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(status))
}
