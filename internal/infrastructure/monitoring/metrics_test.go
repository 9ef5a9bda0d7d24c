package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/resilience"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestWidgetObservers(t *testing.T) {
	m := NewMetrics()

	m.ObserveCompile(true)
	m.ObserveCompile(false)
	m.ObserveRender(2 * time.Millisecond)
	m.ObserveCrash("render_loop")
	m.ObserveCrash("render_loop")
	m.ObserveReport(true)
	m.SetWidgetsActive(3)

	out := scrape(t, m)
	assert.Contains(t, out, `dashboard_widget_compiles_total{result="ok"} 1`)
	assert.Contains(t, out, `dashboard_widget_compiles_total{result="error"} 1`)
	assert.Contains(t, out, "dashboard_widget_renders_total 1")
	assert.Contains(t, out, `dashboard_widget_crashes_total{kind="render_loop"} 2`)
	assert.Contains(t, out, `dashboard_widget_reports_total{with_code="true"} 1`)
	assert.Contains(t, out, "dashboard_widgets_active 3")

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Renders)
	assert.Equal(t, int64(2), s.Crashes)
	assert.Equal(t, int64(3), s.ActiveWidgets)
}

func TestProxyObservers(t *testing.T) {
	m := NewMetrics()

	m.ObserveProxy(200, time.Millisecond)
	m.ObserveProxy(502, time.Millisecond)
	m.ObserveProxy(504, time.Millisecond)
	m.ObserveBreaker("api.example.com", resilience.StateOpen)

	out := scrape(t, m)
	assert.Contains(t, out, `dashboard_proxy_requests_total{class="2xx"} 1`)
	assert.Contains(t, out, `dashboard_proxy_requests_total{class="5xx"} 2`)
	assert.Contains(t, out, `dashboard_proxy_breaker_transitions_total{state="open"} 1`)
	assert.Equal(t, int64(3), m.Snapshot().ProxyRequests)
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/widgets/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	out := scrape(t, m)
	assert.Contains(t, out, `dashboard_http_requests_total{method="GET",path="/widgets/:id",status="200"} 2`)
	assert.Contains(t, out, `dashboard_http_requests_total{method="GET",path="unmatched",status="404"} 1`)
	assert.Contains(t, out, "dashboard_uptime_seconds")

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.TotalErrors)
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = NewMetrics()
		_ = NewMetrics()
	})
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(400))
	assert.Equal(t, "other", statusClass(0))
}
