package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Tick("forecast")
	m.Tick("forecast")
	m.Tick("demo")
	m.UserCodeError()
	m.Optimization(150*time.Millisecond, 42)
	m.ForecastJob("finished")
	m.StorageTemperature(63.5)
	m.Published("kafka", "ok", 12)
	m.WebSocketClients(3)
	m.WebSocketDropped("sensor:samples")
	m.WebSocketDropped("sensor:samples")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticksTotal.WithLabelValues("forecast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksTotal.WithLabelValues("demo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.userCodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.optimizations))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.optimizedWorkload))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forecastJobs.WithLabelValues("finished")))
	assert.Equal(t, 63.5, testutil.ToFloat64(m.storageTemperature))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.publishedSamples.WithLabelValues("kafka", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.wsClients))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.wsDropped.WithLabelValues("sensor:samples")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick("demo")
		m.UserCodeError()
		m.Optimization(time.Second, 10)
		m.ForecastJob("failed")
		m.StorageTemperature(50)
		m.Published("mqtt", "fail", 1)
		m.WebSocketClients(1)
		m.WebSocketDropped("sim:state")
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Instrument("status", h))
}

func TestMetrics_InstrumentAndHandler(t *testing.T) {
	m := New()

	h := m.Instrument("status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status/", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("status", "202")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}
