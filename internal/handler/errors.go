package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// errorBody is the single error envelope of the API.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// writeError translates domain errors into the error envelope.  Anything
// unrecognised is logged and reported as internal_error without detail.
func writeError(c echo.Context, err error) error {
	var (
		unavailable *model.SeatUnavailableError
		unknown     *model.UnknownSeatError
		invalid     *validationError
		httpErr     *echo.HTTPError
	)
	switch {
	case errors.As(err, &unavailable):
		return c.JSON(http.StatusConflict, errorBody{"seat_unavailable", "one or more seats are not available",
			map[string]any{"unavailable": unavailable.SeatIDs}})
	case errors.Is(err, model.ErrSeatUnavailable):
		return c.JSON(http.StatusConflict, errorBody{"seat_unavailable", "one or more seats are not available", nil})
	case errors.Is(err, model.ErrHoldExpired):
		return c.JSON(http.StatusGone, errorBody{"hold_expired", "the seat hold has expired", nil})
	case errors.Is(err, model.ErrHoldNotFound):
		return c.JSON(http.StatusGone, errorBody{"hold_not_found", "the seat hold no longer exists", nil})
	case errors.Is(err, model.ErrPaymentReconciliationConflict):
		return c.JSON(http.StatusConflict, errorBody{"reconciliation_conflict", "payment received but seats could not be confirmed",
			map[string]any{"acknowledged": true}})
	case errors.Is(err, model.ErrInvalidState):
		return c.JSON(http.StatusConflict, errorBody{"invalid_state", err.Error(), nil})
	case errors.Is(err, model.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, errorBody{"not_found", "booking not found", nil})
	case errors.Is(err, model.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, errorBody{"not_found", "show not found", nil})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorBody{"forbidden", "booking belongs to another user", nil})
	case errors.Is(err, model.ErrShowNotBookable):
		return c.JSON(http.StatusUnprocessableEntity, errorBody{"show_not_bookable", "show is not open for booking", nil})
	case errors.As(err, &unknown):
		return c.JSON(http.StatusBadRequest, errorBody{"validation_error", "unknown seats",
			map[string]any{"unknown": unknown.SeatIDs}})
	case errors.Is(err, model.ErrNoSeats), errors.Is(err, model.ErrTooManySeats):
		return c.JSON(http.StatusBadRequest, errorBody{"validation_error", err.Error(), nil})
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, errorBody{"validation_error", invalid.Error(), invalid.details()})
	case errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError:
		return c.JSON(httpErr.Code, errorBody{"validation_error", http.StatusText(httpErr.Code), nil})
	}
	logging.FromContext(c.Request().Context()).WithError(err).Error("request failed")
	return c.JSON(http.StatusInternalServerError, errorBody{"internal_error", "internal error", nil})
}
