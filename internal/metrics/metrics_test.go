package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMetricsCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)

	m.FrameReceived("new_msg")
	m.FrameReceived("new_msg")
	m.FrameSent("heartbeat")
	m.CallbackDispatched()
	m.DecodeError()
	m.CallbackPanic()
	m.SetStatus(1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("new_msg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("heartbeat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbackPanics))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionState))
}

func TestNilClientMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *ClientMetrics
	assert.NotPanics(t, func() {
		m.FrameReceived("x")
		m.FrameSent("x")
		m.CallbackDispatched()
		m.DecodeError()
		m.CallbackPanic()
		m.SetStatus(3)
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewClientMetrics(reg)
	assert.Panics(t, func() { NewClientMetrics(reg) })
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	m := NewClientMetrics(reg)
	m.FrameSent("phx_join")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `realtime_client_frames_sent_total{event="phx_join"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
