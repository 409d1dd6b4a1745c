package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream outcomes recorded by RecordStreamDone.
const (
	StreamDispatched     = "dispatched"
	StreamReadFailed     = "read_failed"
	StreamDispatchFailed = "dispatch_failed"
)

// Metrics holds all Prometheus metrics for the ingress.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Connection metrics
	QUICConnectionsTotal   *prometheus.CounterVec
	QUICConnectionsActive  prometheus.Gauge
	QUICConnectionDuration prometheus.Histogram

	// Stream metrics
	QUICStreamsTotal  *prometheus.CounterVec
	QUICStreamsActive prometheus.Gauge

	// Packet metrics
	PacketBytesTotal prometheus.Counter
	PacketSize       prometheus.Histogram
	DispatchDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics creates the ingress metrics and registers them with reg.
// A nil reg uses a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		QUICConnectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unigate_quic_connections_total",
				Help: "QUIC connection attempts by handshake result",
			},
			[]string{"result"},
		),

		QUICConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "unigate_quic_connections_active",
				Help: "Active QUIC connections",
			},
		),

		QUICConnectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "unigate_quic_connection_duration_seconds",
				Help:    "QUIC connection lifetime",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900, 3600},
			},
		),

		QUICStreamsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unigate_quic_streams_total",
				Help: "Unidirectional streams handled by outcome",
			},
			[]string{"result"},
		),

		QUICStreamsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "unigate_quic_streams_active",
				Help: "Streams currently being read or dispatched",
			},
		),

		PacketBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "unigate_packet_bytes_total",
				Help: "Payload bytes handed to the dispatcher",
			},
		),

		PacketSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "unigate_packet_size_bytes",
				Help:    "Packet payload size distribution",
				Buckets: []float64{0, 16, 64, 128, 256, 512, 768, 1024},
			},
		),

		DispatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "unigate_dispatch_duration_seconds",
				Help:    "Packet dispatcher latency",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		gatherer: reg,
	}

	return m
}

// RecordHandshake logs QUIC connection attempts.
func (m *Metrics) RecordHandshake(success bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !success {
		result = "handshake_failed"
	}
	m.QUICConnectionsTotal.WithLabelValues(result).Inc()

	if success {
		m.QUICConnectionsActive.Inc()
	}
}

// RecordConnectionClose updates metrics for closed QUIC connections.
func (m *Metrics) RecordConnectionClose(durationSeconds float64) {
	if m == nil {
		return
	}
	m.QUICConnectionsActive.Dec()
	m.QUICConnectionDuration.Observe(durationSeconds)
}

// RecordStreamOpen marks a stream as in flight.
func (m *Metrics) RecordStreamOpen() {
	if m == nil {
		return
	}
	m.QUICStreamsActive.Inc()
}

// RecordStreamDone records the outcome of one stream.
func (m *Metrics) RecordStreamDone(result string) {
	if m == nil {
		return
	}
	m.QUICStreamsActive.Dec()
	m.QUICStreamsTotal.WithLabelValues(result).Inc()
}

// RecordPacket records a payload that was read successfully.
func (m *Metrics) RecordPacket(size int) {
	if m == nil {
		return
	}
	m.PacketBytesTotal.Add(float64(size))
	m.PacketSize.Observe(float64(size))
}

// RecordDispatch records dispatcher latency.
func (m *Metrics) RecordDispatch(durationSeconds float64) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(durationSeconds)
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
