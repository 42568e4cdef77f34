// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RateLimiter is the edge token bucket: a per-client x/time/rate limiter in
// front of every route that absorbs floods before they reach the intake
// pipeline. The hourly submission quota is a separate concern enforced by
// internal/limiter, which can be shared through redis; this one is always
// process-local.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL = 10 * time.Minute
	sweepInterval = time.Minute
)

// keyFunc maps a request to its bucket.
type keyFunc func(*gin.Context) string

// KeyByClient keys buckets by the first X-Forwarded-For entry, the identity
// the intake pipeline uses, falling back to the peer IP. Keys look like
// "ip:203.0.113.7".
func KeyByClient() keyFunc {
	return func(c *gin.Context) string {
		first, _, _ := strings.Cut(c.GetHeader("X-Forwarded-For"), ",")
		if first = strings.TrimSpace(first); first != "" {
			return "ip:" + first
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key. Buckets idle for longer than
// bucketIdleTTL are swept at most once per sweepInterval. Safe for
// concurrent use.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	keyFn  keyFunc
	exempt map[string]struct{}
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second with the
// given burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		exempt:  make(map[string]struct{}),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Exempt excludes registered routes (e.g. "/health") from limiting.
func (rl *RateLimiter) Exempt(paths ...string) *RateLimiter {
	for _, p := range paths {
		rl.exempt[p] = struct{}{}
	}
	return rl
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep before the lookup so a stale bucket for key is replaced, not revived.
	if now.Sub(rl.lastSweep) >= sweepInterval {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= bucketIdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// retryAfter is the whole number of seconds until lim has a token, at least 1.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return max(1, int(math.Ceil(d.Seconds())))
}

// Handler answers 429 with a Retry-After header and the standard error
// envelope once a client's bucket is empty.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := rl.exempt[c.FullPath()]; skip {
			c.Next()
			return
		}

		now := rl.now()
		key := rl.keyFn(c)
		lim := rl.bucketFor(key, now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		LoggerFrom(c).Debug().Str("client", key).Msg("edge rate limit")
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"error":      "Rate limit exceeded",
		})
	}
}
