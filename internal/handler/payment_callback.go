package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// PaymentConfirmer applies payment outcomes to bookings.
type PaymentConfirmer interface {
	OnPaymentSuccess(ctx context.Context, bookingID, paymentRef string) (model.Booking, error)
	OnPaymentFailure(ctx context.Context, bookingID string) (model.Booking, error)
}

type PaymentHandler struct {
	confirm PaymentConfirmer
}

func NewPaymentHandler(confirm PaymentConfirmer) *PaymentHandler {
	if confirm == nil {
		panic("nil confirmer passed to NewPaymentHandler")
	}
	return &PaymentHandler{confirm: confirm}
}

type callbackRequest struct {
	BookingID  string `json:"booking_id" validate:"required,max=64"`
	PaymentRef string `json:"payment_ref" validate:"required,max=128"`
	Status     string `json:"status" validate:"required,oneof=success failure"`
}

// Callback handles POST /v1/payments/callback.  The signature was
// checked by middleware.  Duplicate deliveries get the same answer.
func (h *PaymentHandler) Callback(c echo.Context) error {
	var req callbackRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id":  req.BookingID,
		"payment_ref": req.PaymentRef,
		"outcome":     req.Status,
	}).Info("payment callback received")

	var (
		b   model.Booking
		err error
	)
	if req.Status == "success" {
		b, err = h.confirm.OnPaymentSuccess(ctx, req.BookingID, req.PaymentRef)
	} else {
		b, err = h.confirm.OnPaymentFailure(ctx, req.BookingID)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"booking_id": b.ID,
		"status":     string(b.Status),
	})
}
