// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Per-identity token buckets on golang.org/x/time/rate. The limiter is
// process-local: with several replicas each enforces its own budget. Idle
// buckets are evicted by a periodic sweep piggybacked on lookups.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL = 10 * time.Minute
	sweepEvery    = 4096 // lookups between idle sweeps
)

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429, by limiter scope and key kind.",
	},
	[]string{"scope", "kind"},
)

func init() { prometheus.MustRegister(rateLimited) }

// KeyFunc maps a request to its bucket. Keys are "<kind>:<id>".
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP buckets signed-in staff by account and everyone else by
// client IP.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := userIDFromCtx(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByIP buckets by client IP only. Used on sign-in and sign-up, where the
// caller has no account yet.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	scope string
	every rate.Limit
	burst int
	key   KeyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
	ttl     time.Duration
	now     func() time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (minimum 1). scope labels the rejection metric.
func NewRateLimiter(scope string, rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		scope:   scope,
		every:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		buckets: make(map[string]*bucket),
		ttl:     bucketIdleTTL,
		now:     time.Now,
	}
}

// limiter returns the bucket for key. The idle sweep runs before the lookup
// so a stale bucket for key itself is replaced rather than revived.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= sweepEvery {
		rl.lookups = 0
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.every, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay, which must not spend tokens.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. Rejections get 429, the error envelope and a
// Retry-After with the whole seconds until a token is available.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		key := rl.key(c)
		res := rl.limiter(key).ReserveN(rl.now(), 1)
		if res.OK() && res.DelayFrom(rl.now()) == 0 {
			c.Next()
			return
		}

		wait := 1
		if res.OK() {
			wait = int(math.Ceil(res.DelayFrom(rl.now()).Seconds()))
			res.CancelAt(rl.now())
		}
		if wait < 1 {
			wait = 1
		}
		rateLimited.WithLabelValues(rl.scope, keyKind(key)).Inc()

		c.Header("Retry-After", strconv.Itoa(wait))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": requestIDOf(c),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

func keyKind(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return "other"
}
