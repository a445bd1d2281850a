package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking-core/internal/config"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/metrics"
)

// KEYS[1] bucket hash
// ARGV now_ms, capacity, refill_tokens, interval_ms, ttl_seconds
// returns {allowed, remaining, retry_after_ms}
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now_ms
end

local steps = math.floor(math.max(0, now_ms - ts) / interval)
if steps > 0 then
  tokens = math.min(capacity, tokens + steps * refill)
  ts = ts + steps * interval
end

local allowed = 0
local retry = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.max(0, interval - (now_ms - ts))
end

redis.call('HSET', key, 'tokens', tokens, 'ts', ts)
redis.call('EXPIRE', key, tonumber(ARGV[5]))
return {allowed, tokens, retry}
`)

var errUnexpectedReply = errors.New("unexpected token bucket reply")

type bucketDecision struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

type tokenBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
}

func (b tokenBucket) take(ctx context.Context, key string, now time.Time) (bucketDecision, error) {
	res, err := tokenBucketScript.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return bucketDecision{}, err
	}
	if len(res) != 3 {
		return bucketDecision{}, errUnexpectedReply
	}
	return bucketDecision{
		allowed:    res[0] == 1,
		remaining:  res[1],
		retryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits requests per key with a token bucket kept in
// Redis, so the limit holds across instances.  Redis errors let the
// request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	cfg.Capacity = max(cfg.Capacity, 1)
	cfg.RefillTokens = max(cfg.RefillTokens, 1)
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	cfg.TTL = max(cfg.TTL, 5*cfg.RefillInterval)
	bucket := tokenBucket{cfg: cfg, rdb: rdb}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := rateKey(cfg, c)
			d, err := bucket.take(ctx, key, time.Now())
			if err != nil {
				logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("rate limiter unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if d.allowed {
				return next(c)
			}

			secs := int(math.Ceil(d.retryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			metrics.RateLimited.Inc()
			if cfg.Debug {
				logging.FromContext(ctx).WithField("key", key).Info("rate limited")
			}
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"error":   "rate_limited",
				"message": "too many booking attempts, slow down",
				"details": map[string]int{"retry_after_seconds": secs},
			})
		}
	}
}

// rateKey buckets by caller.  Strategies: "user" (default), "ip" and
// "user_route".  Anonymous callers fall back to their IP.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "rl"
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	user := UserID(c)

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		return prefix + ":ip:" + ip
	case "user_route":
		if user == "" {
			return prefix + ":ip:" + ip + ":route:" + c.Request().Method + " " + c.Path()
		}
		return prefix + ":user:" + user + ":route:" + c.Request().Method + " " + c.Path()
	default:
		if user == "" {
			return prefix + ":ip:" + ip
		}
		return prefix + ":user:" + user
	}
}
