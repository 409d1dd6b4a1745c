package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("unigate-test", "0.0.0", &buf)

	logger.WithConn(7).WithPeer("127.0.0.1:5000").ConnectionAccepted()
	logger.WithPeer("127.0.0.1:5001").HandshakeFailed(errors.New("crypto error"))

	dec := json.NewDecoder(&buf)
	var accepted, failed map[string]any
	require.NoError(t, dec.Decode(&accepted))
	require.NoError(t, dec.Decode(&failed))

	assert.Equal(t, "info", accepted["level"])
	assert.Equal(t, "quic connection accepted", accepted["message"])
	assert.EqualValues(t, 7, accepted["connection_id"])
	assert.Equal(t, "127.0.0.1:5000", accepted["remote_addr"])
	assert.Equal(t, "unigate-test", accepted["service"])

	assert.Equal(t, "error", failed["level"])
	assert.Equal(t, "crypto error", failed["error"])
	assert.Equal(t, "127.0.0.1:5001", failed["remote_addr"])
	assert.NotContains(t, failed, "connection_id")
}

func TestLoggerWithLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("unigate-test", "0.0.0", &buf).WithLevel("warn")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.WithConn(1).PacketDispatched(2, 3, time.Millisecond)
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")

	_, err = logger.WithLevel("loud")
	assert.Error(t, err)
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHandshake(true)
	m.RecordHandshake(true)
	m.RecordHandshake(false)
	m.RecordConnectionClose(2.5)
	m.RecordStreamOpen()
	m.RecordStreamDone(StreamDispatched)
	m.RecordPacket(512)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QUICConnectionsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QUICConnectionsTotal.WithLabelValues("handshake_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QUICConnectionsActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QUICStreamsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QUICStreamsTotal.WithLabelValues(StreamDispatched)))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.PacketBytesTotal))

	// a second set of metrics on its own registry must not collide
	_ = NewMetrics(prometheus.NewRegistry())
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHandshake(true)
		m.RecordConnectionClose(1)
		m.RecordStreamOpen()
		m.RecordStreamDone(StreamReadFailed)
		m.RecordPacket(1)
		m.RecordDispatch(0.1)
	})
}

func TestHealthChecker(t *testing.T) {
	active := 0
	serving := true
	hc := NewHealthChecker("test")
	hc.RegisterCheck("quic_listener", QUICListenerCheck(":4433", func() bool { return serving }))
	hc.RegisterCheck("connections", ConnectionsCheck(func() int { return active }, 10))

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusOK, resp.Status)
	assert.Len(t, resp.Checks, 2)

	active = 9
	assert.Equal(t, HealthStatusDegraded, hc.Check(context.Background()).Status)

	serving = false
	rec := httptest.NewRecorder()
	hc.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthStatusUnhealthy, body.Status)
}

func TestInitTracingNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_JAEGER_ENDPOINT", "")
	shutdown, err := InitTracing(context.Background(), "unigate-test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
