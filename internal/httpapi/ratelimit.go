package httpapi

import (
	"net/http"
	"sync"
	"time"

	"incident-portal/internal/config"
	"incident-portal/internal/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP. Idle buckets are
// evicted lazily on access.
type IPRateLimiter struct {
	limit rate.Limit
	burst int
	clock func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewIPRateLimiter builds a limiter from portal settings. A non-positive
// per-minute rate disables limiting.
func NewIPRateLimiter(s config.RateLimitSettings) *IPRateLimiter {
	l := &IPRateLimiter{
		limit:    rate.Inf,
		burst:    s.Burst,
		clock:    time.Now,
		visitors: map[string]*visitor{},
	}
	if s.SubmissionsPerMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(s.SubmissionsPerMinute))
	}
	if l.burst <= 0 {
		l.burst = 1
	}
	return l
}

// WithClock overrides the time source. Used by tests.
func (l *IPRateLimiter) WithClock(clock func() time.Time) *IPRateLimiter {
	l.clock = clock
	return l
}

// Allow consumes one token for ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the per-IP budget with 429.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			metrics.SubmissionsRejected.WithLabelValues("rate_limited").Inc()
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many submissions, retry later"})
			return
		}
		c.Next()
	}
}
