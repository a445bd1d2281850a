package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/payment"
)

const maxCallbackBody = 64 << 10

// PaymentSignature rejects callbacks whose X-Signature header is not the
// HMAC-SHA256 of the raw body under secret.  The body is restored for the
// handler.
func PaymentSignature(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody+1))
			_ = r.Body.Close()
			if err != nil || len(body) > maxCallbackBody {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "validation_error", "message": "unreadable body"})
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !payment.Verify(secret, body, r.Header.Get(payment.SignatureHeader)) {
				logging.FromContext(r.Context()).WithField("remote_addr", c.RealIP()).Warn("payment callback signature rejected")
				return unauthorized(c, "invalid signature")
			}
			return next(c)
		}
	}
}
