package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prempal04/AyurSutra/internal/config"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than idleTTL are dropped by Cleanup.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		idleTTL:  10 * time.Minute,
		log:      log,
		now:      time.Now,
	}
}

func (r *RateLimiter) limiterFor(ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[ip] = v
	}
	v.lastSeen = r.now()
	return v.limiter
}

// Cleanup forgets idle clients and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for ip, v := range r.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(r.visitors, ip)
			removed++
		}
	}
	return removed
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !r.limiterFor(ip).Allow() {
			r.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
			return
		}
		c.Next()
	}
}
