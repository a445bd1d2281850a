package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-core/internal/handler"
	"github.com/iliyamo/cinema-booking-core/internal/middleware"
)

// RoleCustomer is the JWT role allowed to book.
const RoleCustomer = "CUSTOMER"

// RegisterCustomer registers the booking endpoints under /v1/bookings.  All
// routes require a valid JWT and the CUSTOMER role.  limiter guards
// booking creation and may be nil.
func RegisterCustomer(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/bookings",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(RoleCustomer),
	)
	if limiter != nil {
		g.POST("", h.Create, limiter)
	} else {
		g.POST("", h.Create)
	}
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/checkout", h.Checkout)
	g.POST("/:id/extend", h.Extend)
	g.POST("/:id/cancel", h.Cancel)
}
