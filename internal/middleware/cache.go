package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking-core/internal/config"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/metrics"
)

const cacheHeader = "X-Cache"

// cachedResponse is what a cache entry holds.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// recorder tees the response body into buf until limit bytes were seen.
type recorder struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
			r.overflow = true
			r.buf.Reset()
		} else {
			r.buf.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// cacheKey identifies a response by the concrete request path, so every
// show gets its own entry.  "path_query" also includes the raw query.
func cacheKey(cfg config.CacheConfig, r *http.Request) string {
	tail := r.Method + " " + r.URL.Path
	if strings.EqualFold(cfg.KeyStrategy, "path_query") && r.URL.RawQuery != "" {
		tail += "?" + r.URL.RawQuery
	}
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewRedisCache caches 200 responses of the wrapped route in Redis.  Only
// use it where the output depends on nothing but the request path: the
// seat map of a show qualifies, live availability does not.  Bodies above
// MaxBodyBytes are served but never stored.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache"
	}
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = map[string]bool{http.MethodGet: true}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !methods[req.Method] {
				return next(c)
			}
			ctx := req.Context()
			key := cacheKey(cfg, req)

			raw, err := rdb.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					metrics.ResponseCache.WithLabelValues("hit").Inc()
					return replay(c, hit)
				}
			case !errors.Is(err, redis.Nil):
				logging.FromContext(ctx).WithError(err).Debug("response cache lookup failed")
			}
			metrics.ResponseCache.WithLabelValues("miss").Inc()

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set(cacheHeader, "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflow {
				return nil
			}

			entry := cachedResponse{Status: rec.status, Header: c.Response().Header().Clone(), Body: rec.buf.Bytes()}
			entry.Header.Del(cacheHeader)
			entry.Header.Del(echo.HeaderContentLength)
			entry.Header.Del(echo.HeaderXRequestID)
			payload, err := json.Marshal(entry)
			if err != nil {
				return nil
			}
			// The request context may already be cancelled once the client has its answer.
			if err := rdb.Set(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
				logging.FromContext(ctx).WithError(err).Debug("response cache store failed")
			}
			return nil
		}
	}
}

func replay(c echo.Context, r cachedResponse) error {
	h := c.Response().Header()
	for k, vals := range r.Header {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set(cacheHeader, "HIT")
	c.Response().WriteHeader(r.Status)
	_, err := c.Response().Write(r.Body)
	return err
}
