package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking-core/internal/logging"
)

// RequestLogger puts a request scoped logrus entry into the request
// context and logs one line per request.  It expects echo's RequestID
// middleware to run first.
func RequestLogger(base *logrus.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = req.Header.Get(echo.HeaderXRequestID)
			}
			entry := base.WithFields(logrus.Fields{
				"request_id": rid,
				"method":     req.Method,
				"path":       req.URL.Path,
			})
			c.SetRequest(req.WithContext(logging.WithContext(req.Context(), entry)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := logrus.Fields{
				"status":  status,
				"latency": time.Since(start).String(),
			}
			if id := UserID(c); id != "" {
				fields["user_id"] = id
			}
			entry = entry.WithFields(fields)
			if err != nil {
				entry = entry.WithError(err)
			}
			switch {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request handled")
			}
			return nil
		}
	}
}
