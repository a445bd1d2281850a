package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/config"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/payment"
)

const secret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c)+"/"+Role(c))
	}, JWTAuth(secret), RequireRole("CUSTOMER"))

	exp := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
		{"no expiry", "Bearer " + signed(t, jwt.MapClaims{"sub": "u1", "role": "CUSTOMER"}), http.StatusUnauthorized, ""},
		{"wrong role", "Bearer " + signed(t, jwt.MapClaims{"sub": "u1", "role": "OWNER", "exp": exp}), http.StatusForbidden, ""},
		{"string subject", "Bearer " + signed(t, jwt.MapClaims{"sub": "u1", "role": "CUSTOMER", "exp": exp}), http.StatusOK, "u1/CUSTOMER"},
		{"numeric subject", "Bearer " + signed(t, jwt.MapClaims{"sub": 42, "role": "CUSTOMER", "exp": exp}), http.StatusOK, "42/CUSTOMER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := serve(e, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestPaymentSignature(t *testing.T) {
	e := echo.New()
	e.POST("/cb", func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "text/plain", b)
	}, PaymentSignature(secret))

	body := []byte(`{"booking_id":"b1"}`)
	req := httptest.NewRequest(http.MethodPost, "/cb", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, payment.Sign(secret, body))
	rec := serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(body), rec.Body.String(), "handler sees the original body")

	req = httptest.NewRequest(http.MethodPost, "/cb", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, payment.Sign("other", body))
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/cb", bytes.NewReader(body))
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestRequestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := echo.New()
	e.GET("/ok", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("inside")
		return c.NoContent(http.StatusNoContent)
	}, RequestLogger(logrus.NewEntry(logger)))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderXRequestID, "rid-1")
	rec := serve(e, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "rid-1", entries[0].Data["request_id"])
	assert.Equal(t, "request handled", entries[1].Message)
	assert.Equal(t, http.StatusNoContent, entries[1].Data["status"])
	assert.Equal(t, "/ok", entries[1].Data["path"])
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings")

	assert.Equal(t, "rl:ip:10.0.0.1", rateKey(config.RateLimitConfig{Prefix: "rl"}, c))

	c.Set(ctxUserID, "u1")
	assert.Equal(t, "rl:user:u1", rateKey(config.RateLimitConfig{Prefix: "rl"}, c))
	assert.Equal(t, "rl:user:u1:route:POST /v1/bookings",
		rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}, c))
	assert.Equal(t, "rl:ip:10.0.0.1", rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))
}

func TestCacheKeyPerShow(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "path"}
	a := cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/v1/shows/s1/seatmap", nil))
	b := cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/v1/shows/s2/seatmap", nil))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "cache:"))

	q1 := cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/v1/shows/s1/seatmap?x=1", nil))
	assert.Equal(t, a, q1)
	cfg.KeyStrategy = "path_query"
	assert.NotEqual(t, a, cacheKey(cfg, httptest.NewRequest(http.MethodGet, "/v1/shows/s1/seatmap?x=1", nil)))
}

func TestRecorderOverflow(t *testing.T) {
	rec := &recorder{ResponseWriter: httptest.NewRecorder(), limit: 4}
	_, _ = rec.Write([]byte("abc"))
	assert.False(t, rec.overflow)
	_, _ = rec.Write([]byte("de"))
	assert.True(t, rec.overflow)
	assert.Zero(t, rec.buf.Len())
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") },
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "x"))
}
