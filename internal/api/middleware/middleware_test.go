package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/Dashboard/backend/internal/bridge"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":1234"
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerIP(t *testing.T) {
	r := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.1").Code)

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.2").Code)
}

func getAs(r http.Handler, ip, widgetID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":1234"
	req.Header.Set(bridge.HeaderWidgetID, widgetID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestProxyRateLimitPerWidget(t *testing.T) {
	r := newRouter(RateLimit(ProxyRateLimitConfig(1, 2)))

	for n := 0; n < 2; n++ {
		assert.Equal(t, http.StatusOK, getAs(r, "127.0.0.1", "wgt_busy").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, getAs(r, "127.0.0.1", "wgt_busy").Code)

	assert.Equal(t, http.StatusOK, getAs(r, "127.0.0.1", "wgt_quiet").Code)
	assert.Equal(t, http.StatusOK, getAs(r, "127.0.0.1", "wgt_quiet").Code)
}

func TestProxyRateLimitIgnoresRemoteWidgetHeader(t *testing.T) {
	r := newRouter(RateLimit(ProxyRateLimitConfig(1, 2)))

	assert.Equal(t, http.StatusOK, getAs(r, "10.0.0.9", "wgt_1").Code)
	assert.Equal(t, http.StatusOK, getAs(r, "10.0.0.9", "wgt_2").Code)
	assert.Equal(t, http.StatusTooManyRequests, getAs(r, "10.0.0.9", "wgt_3").Code)
}

func TestGlobalRateLimit(t *testing.T) {
	r := newRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1").Code)
	rec := get(r, "10.0.0.2")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestLimiterSetForgetsIdleClients(t *testing.T) {
	now := time.Unix(0, 0)
	set := newLimiterSet(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute}, func() time.Time { return now })

	set.get("a")
	set.get("b")
	assert.Equal(t, 2, set.size())

	now = now.Add(2 * time.Minute)
	set.get("c")
	assert.Equal(t, 1, set.size())
}

func TestCORSExposesBridgeHeaders(t *testing.T) {
	r := newRouter(CORS(DefaultCORSConfig()))

	rec := get(r, "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Set-Cookie")
}

func TestCORSRestrictedOrigins(t *testing.T) {
	r := newRouter(CORS(DefaultCORSConfig("http://dashboard.local")))

	rec := get(r, "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://dashboard.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://elsewhere.local")
	other := httptest.NewRecorder()
	r.ServeHTTP(other, req)
	assert.Equal(t, http.StatusForbidden, other.Code)
}
