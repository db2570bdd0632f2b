// Package metrics exposes simulation counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal          *prometheus.CounterVec
	userCodeErrors      prometheus.Counter
	optimizations       prometheus.Counter
	optimizeDuration    prometheus.Histogram
	optimizedWorkload   prometheus.Gauge
	forecastJobs        *prometheus.CounterVec
	storageTemperature  prometheus.Gauge
	publishedSamples    *prometheus.CounterVec
	wsClients           prometheus.Gauge
	wsDropped           *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecocontrol_ticks_total",
			Help: "Simulation ticks executed by run mode.",
		}, []string{"mode"}),
		userCodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecocontrol_user_code_errors_total",
			Help: "Ticks whose user control code failed.",
		}),
		optimizations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecocontrol_optimizations_total",
			Help: "Completed auto-optimization rounds.",
		}),
		optimizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecocontrol_optimization_duration_seconds",
			Help:    "Wall time of one auto-optimization round.",
			Buckets: prometheus.DefBuckets,
		}),
		optimizedWorkload: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ecocontrol_optimized_workload_percent",
			Help: "Last cogeneration workload chosen by the optimizer.",
		}),
		forecastJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecocontrol_forecast_jobs_total",
			Help: "Forecast jobs by outcome.",
		}, []string{"status"}),
		storageTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ecocontrol_heat_storage_temperature_celsius",
			Help: "Heat storage temperature of the live run.",
		}),
		publishedSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecocontrol_published_samples_total",
			Help: "Samples forwarded to a broker by sink and outcome.",
		}, []string{"sink", "status"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ecocontrol_ws_clients",
			Help: "Connected WebSocket clients.",
		}),
		wsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecocontrol_ws_dropped_messages_total",
			Help: "WebSocket messages dropped for clients with a full buffer, by message type.",
		}, []string{"type"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.ticksTotal,
		m.userCodeErrors,
		m.optimizations,
		m.optimizeDuration,
		m.optimizedWorkload,
		m.forecastJobs,
		m.storageTemperature,
		m.publishedSamples,
		m.wsClients,
		m.wsDropped,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Tick(mode string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) UserCodeError() {
	if m == nil {
		return
	}
	m.userCodeErrors.Inc()
}

func (m *Metrics) Optimization(d time.Duration, workload float64) {
	if m == nil {
		return
	}
	m.optimizations.Inc()
	m.optimizeDuration.Observe(d.Seconds())
	m.optimizedWorkload.Set(workload)
}

func (m *Metrics) ForecastJob(status string) {
	if m == nil {
		return
	}
	m.forecastJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) StorageTemperature(celsius float64) {
	if m == nil {
		return
	}
	m.storageTemperature.Set(celsius)
}

// Published counts n samples forwarded by sink with status "ok" or "fail".
func (m *Metrics) Published(sink, status string, n int) {
	if m == nil {
		return
	}
	m.publishedSamples.WithLabelValues(sink, status).Add(float64(n))
}

func (m *Metrics) WebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// WebSocketDropped counts one message of msgType that a slow client missed.
func (m *Metrics) WebSocketDropped(msgType string) {
	if m == nil {
		return
	}
	m.wsDropped.WithLabelValues(msgType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Instrument records request count and latency under the given route name.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
