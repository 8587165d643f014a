package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/staybook/hotel-reservations/internal/config"
)

// bucket takes one token for key.  retry is how long until the next
// token when the request is not allowed.
type bucket interface {
	take(ctx context.Context, key string, now time.Time) (allowed bool, remaining int64, retry time.Duration, err error)
}

// NewTokenBucket limits requests per key.  With a Redis client the bucket
// is shared across instances through a Lua script; without one it falls
// back to per-process limiters so a single node is still protected.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logrus.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	var b bucket
	if rdb != nil {
		b = &redisBucket{cfg: cfg, rdb: rdb}
	} else {
		b = newLocalBucket(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			allowed, remaining, retry, err := b.take(c.Request().Context(), key, time.Now())
			if err != nil {
				// fail open: a limiter outage must not take bookings down
				log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("ratelimit: backend error")
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(retry.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					log.WithFields(logrus.Fields{"key": key, "retry_ms": retry.Milliseconds()}).Info("ratelimit: blocked")
				}
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

type redisBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
}

func (b *redisBucket) take(ctx context.Context, key string, now time.Time) (bool, int64, time.Duration, error) {
	vals, err := limiterScript.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return false, 0, 0, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected script result %#v", vals)
	}
	return asInt64(arr[0]) == 1, asInt64(arr[1]), time.Duration(asInt64(arr[2])) * time.Millisecond, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// localBucket keeps one rate.Limiter per key.  Keys idle for longer than
// the TTL are dropped on the next sweep.
type localBucket struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu        sync.Mutex
	entries   map[string]*localEntry
	lastSweep time.Time
}

type localEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalBucket(cfg config.RateLimitConfig) *localBucket {
	return &localBucket{
		limit:   rate.Every(cfg.RefillInterval / time.Duration(cfg.RefillTokens)),
		burst:   cfg.Capacity,
		ttl:     cfg.TTL,
		entries: make(map[string]*localEntry),
	}
}

func (b *localBucket) take(_ context.Context, key string, now time.Time) (bool, int64, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) > b.ttl {
		for k, e := range b.entries {
			if now.Sub(e.seen) > b.ttl {
				delete(b.entries, k)
			}
		}
		b.lastSweep = now
	}

	e, ok := b.entries[key]
	if !ok {
		e = &localEntry{lim: rate.NewLimiter(b.limit, b.burst)}
		b.entries[key] = e
	}
	e.seen = now

	if e.lim.AllowN(now, 1) {
		return true, int64(e.lim.TokensAt(now)), 0, nil
	}
	r := e.lim.ReserveN(now, 1)
	retry := r.DelayFrom(now)
	r.CancelAt(now)
	return false, 0, retry, nil
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userKey(c)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
