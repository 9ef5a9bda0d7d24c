package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/Dashboard/backend/internal/bridge"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops limiters for clients not seen for this long.
	IdleTTL time.Duration
	// Key picks the limiter for a request; nil keys by client IP.
	Key func(c *gin.Context) string
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
	}
}

// ProxyRateLimitConfig is the tighter budget for the network bridge route,
// applied per widget for engine calls and per IP otherwise.
func ProxyRateLimitConfig(rps, burst int) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
		IdleTTL:           10 * time.Minute,
		Key:               WidgetKey,
	}
}

// WidgetKey keys loopback bridge calls by the calling widget. The header is
// ignored from other addresses so remote clients cannot mint budgets.
func WidgetKey(c *gin.Context) string {
	ip := c.ClientIP()
	if id := c.GetHeader(bridge.HeaderWidgetID); id != "" {
		if addr := net.ParseIP(ip); addr != nil && addr.IsLoopback() {
			return "widget:" + id
		}
	}
	return ip
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one limiter per client key.
type limiterSet struct {
	cfg   RateLimitConfig
	now   func() time.Time
	mu    sync.Mutex
	seen  map[string]*client
	swept time.Time
}

func newLimiterSet(cfg RateLimitConfig, now func() time.Time) *limiterSet {
	return &limiterSet{
		cfg:   cfg,
		now:   now,
		seen:  make(map[string]*client),
		swept: now(),
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cfg.IdleTTL > 0 && now.Sub(s.swept) > s.cfg.IdleTTL {
		for k, c := range s.seen {
			if now.Sub(c.lastSeen) > s.cfg.IdleTTL {
				delete(s.seen, k)
			}
		}
		s.swept = now
	}

	c, ok := s.seen[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.seen[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// RateLimit creates a per-client rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	set := newLimiterSet(cfg, time.Now)
	key := cfg.Key
	if key == nil {
		key = func(c *gin.Context) string { return c.ClientIP() }
	}

	return func(c *gin.Context) {
		if !set.get(key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
