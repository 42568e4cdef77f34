package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-contact-intake/internal/config"
)

// KeyPrefix namespaces limiter counters in Redis.
const KeyPrefix = "rate_limit:"

// fixedWindowScript increments the counter and starts its TTL on the first
// hit, so the key disappears exactly one window after the window opened.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisFixedWindow is a fixed-window limiter backed by Redis INCR + PEXPIRE.
// Windows follow the Redis server clock; the now argument is ignored.
type RedisFixedWindow struct {
	client redis.Scripter
	window time.Duration
	max    int64
}

// NewRedisFixedWindow returns a Redis-backed limiter. Non-positive arguments
// fall back to DefaultWindow and DefaultMax.
func NewRedisFixedWindow(client redis.Scripter, window time.Duration, max int) *RedisFixedWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &RedisFixedWindow{client: client, window: window, max: int64(max)}
}

// Admit implements Limiter. Redis failures are returned to the caller, which
// decides whether to fail open.
func (r *RedisFixedWindow) Admit(ctx context.Context, clientKey string, _ time.Time) (Decision, error) {
	count, err := fixedWindowScript.Run(ctx, r.client, []string{KeyPrefix + clientKey}, r.window.Milliseconds()).Int64()
	if err != nil {
		return Admitted, fmt.Errorf("rate limit check failed: %w", err)
	}
	if count > r.max {
		return Rejected, nil
	}
	return Admitted, nil
}

// FromConfig picks the limiter for cfg. The redis backend needs a client;
// without one the process-local FixedWindow is used.
func FromConfig(cfg config.RateLimitConfig, client redis.Scripter) Limiter {
	if cfg.Backend == "redis" && client != nil {
		return NewRedisFixedWindow(client, cfg.Window, cfg.Max)
	}
	return NewFixedWindow(cfg.Window, cfg.Max)
}
