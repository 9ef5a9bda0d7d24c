package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Widget engine metrics
	WidgetCompiles     *prometheus.CounterVec
	WidgetRenders      prometheus.Counter
	WidgetRenderTime   prometheus.Histogram
	WidgetCrashes      *prometheus.CounterVec
	WidgetsActive      prometheus.Gauge
	WidgetReports      *prometheus.CounterVec
	WidgetConfigWrites prometheus.Counter

	// Network bridge metrics
	ProxyRequests *prometheus.CounterVec
	ProxyDuration prometheus.Histogram
	ProxyBreakers *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON stats endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	ActiveWidgets int64   `json:"active_widgets"`
	Renders       int64   `json:"renders"`
	Crashes       int64   `json:"crashes"`
	ProxyRequests int64   `json:"proxy_requests"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		WidgetCompiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_widget_compiles_total",
				Help: "Widget source compilations by result",
			},
			[]string{"result"},
		),
		WidgetRenders: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dashboard_widget_renders_total",
				Help: "Widget factory invocations",
			},
		),
		WidgetRenderTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dashboard_widget_render_duration_seconds",
				Help:    "Widget render duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		WidgetCrashes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_widget_crashes_total",
				Help: "Widget crashes by failure kind",
			},
			[]string{"kind"},
		),
		WidgetsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_widgets_active",
				Help: "Number of live widget instances",
			},
		),
		WidgetReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_widget_reports_total",
				Help: "Repair reports sent to the assistant",
			},
			[]string{"with_code"},
		),
		WidgetConfigWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dashboard_widget_config_writes_total",
				Help: "Persisted customData replacements",
			},
		),

		ProxyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_proxy_requests_total",
				Help: "Network bridge requests by status class",
			},
			[]string{"class"},
		),
		ProxyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dashboard_proxy_duration_seconds",
				Help:    "Network bridge request duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ProxyBreakers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_proxy_breaker_transitions_total",
				Help: "Per-host circuit breaker transitions by target state",
			},
			[]string{"state"},
		),

		WSConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashboard_ws_connections",
				Help: "Number of report stream subscribers",
			},
		),
	}
	m.Uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dashboard_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal, m.RequestDuration, m.ResponseSize,
		m.WidgetCompiles, m.WidgetRenders, m.WidgetRenderTime, m.WidgetCrashes,
		m.WidgetsActive, m.WidgetReports, m.WidgetConfigWrites,
		m.ProxyRequests, m.ProxyDuration, m.ProxyBreakers,
		m.WSConnections, m.Uptime,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// ObserveCompile records one actual compilation of widget source.
func (m *Metrics) ObserveCompile(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.WidgetCompiles.WithLabelValues(result).Inc()
}

// ObserveRender records one widget render.
func (m *Metrics) ObserveRender(d time.Duration) {
	m.WidgetRenders.Inc()
	m.WidgetRenderTime.Observe(d.Seconds())

	m.mu.Lock()
	m.snapshot.Renders++
	m.mu.Unlock()
}

// ObserveCrash records a boundary failure of the given kind.
func (m *Metrics) ObserveCrash(kind string) {
	m.WidgetCrashes.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.snapshot.Crashes++
	m.mu.Unlock()
}

// ObserveProxy records a finished proxy request.
func (m *Metrics) ObserveProxy(status int, elapsed time.Duration) {
	m.ProxyRequests.WithLabelValues(statusClass(status)).Inc()
	m.ProxyDuration.Observe(elapsed.Seconds())

	m.mu.Lock()
	m.snapshot.ProxyRequests++
	m.mu.Unlock()
}

// ObserveBreaker records a per-host breaker transition.
func (m *Metrics) ObserveBreaker(_ string, state resilience.State) {
	m.ProxyBreakers.WithLabelValues(state.String()).Inc()
}

// ObserveReport records a repair report.
func (m *Metrics) ObserveReport(withCode bool) {
	m.WidgetReports.WithLabelValues(strconv.FormatBool(withCode)).Inc()
}

// ObserveConfigWrite records a persisted customData replacement.
func (m *Metrics) ObserveConfigWrite() {
	m.WidgetConfigWrites.Inc()
}

// SetWidgetsActive sets the number of live widget instances.
func (m *Metrics) SetWidgetsActive(count int) {
	m.WidgetsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveWidgets = int64(count)
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns the running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencyMS = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
