package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/cinema-booking-core/internal/handler"
)

// RegisterRoutes registers operational routes that do not require
// authentication: the health check and the Prometheus exposition.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the unauthenticated show endpoints.  The seat
// map never changes for a show, so it goes through the response cache;
// availability is live and is never cached.
func RegisterPublic(e *echo.Echo, h *handler.ShowHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/shows/:id/availability", h.GetAvailability)
	if cache != nil {
		e.GET("/v1/shows/:id/seatmap", h.GetSeatMap, cache)
		return
	}
	e.GET("/v1/shows/:id/seatmap", h.GetSeatMap)
}
