package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-core/internal/handler"
	"github.com/iliyamo/cinema-booking-core/internal/middleware"
)

// RegisterPayments registers the payment provider callback.  It carries no
// JWT; the body signature authenticates the provider.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, callbackSecret string) {
	e.POST("/v1/payments/callback", h.Callback, middleware.PaymentSignature(callbackSecret))
}
