package server

import (
	"auction-engine/internal/metrics"
	"auction-engine/utils"
	"errors"
	"net/http"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the correlation id in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestIDMiddleware reuses the caller's request id or assigns a new one
func RequestIDMiddleware(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if id == "" || len(id) > 128 {
		id = utils.NewRequestID()
	}
	c.Set(requestIDKey, id)
	c.Header(RequestIDHeader, id)
	c.Next()
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"request_id": c.GetString(requestIDKey),
		"client_ip":  c.ClientIP(),
	})
}

// MetricsMiddleware records request counts and latency by route template
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		done := m.HTTPStarted()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		done(c.Request.Method, path, c.Writer.Status())
	}
}

// RateLimiter is a token bucket per client IP. Idle buckets are dropped
// after ttl.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perSecond rate.Limit
	burst     int
	ttl       time.Duration
	clock     clock.Clock
	lastPrune time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given burst
func NewRateLimiter(perSecond float64, burst int, clk clock.Clock) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		ttl:       5 * time.Minute,
		clock:     clk,
		lastPrune: clk.Now(),
	}
}

// Allow reports whether key may make another request now
func (l *RateLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastPrune = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Middleware refuses requests over the limit with 429
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !l.Allow(key) {
			utils.JSONError(c, http.StatusTooManyRequests, errors.New("rate limit exceeded"), "too many requests")
			utils.Warn("Rate limit exceeded", map[string]any{"client_ip": key, "path": c.Request.URL.Path})
			c.Abort()
			return
		}
		c.Next()
	}
}
