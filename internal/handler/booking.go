package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-core/internal/middleware"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// BookingService is what the customer endpoints need from the booking
// core.
type BookingService interface {
	CreateBooking(ctx context.Context, showID, userID string, seatIDs []string) (model.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID, reason string) (model.Booking, error)
	Checkout(ctx context.Context, bookingID, userID string) (model.Booking, error)
	ExtendHold(ctx context.Context, bookingID, userID string) (model.Booking, error)
	GetBooking(ctx context.Context, bookingID, userID string) (model.Booking, error)
	ListBookings(ctx context.Context, userID string) ([]model.Booking, error)
}

// BookingHandler serves /v1/bookings.  All methods assume JWTAuth ran.
type BookingHandler struct {
	svc BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc}
}

type createBookingRequest struct {
	ShowID  string   `json:"show_id" validate:"required,max=64"`
	SeatIDs []string `json:"seat_ids" validate:"required,min=1,max=50,dive,required,max=32"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

type bookingResponse struct {
	BookingID          string    `json:"booking_id"`
	ShowID             string    `json:"show_id"`
	SeatIDs            []string  `json:"seat_ids"`
	AmountCents        int64     `json:"amount_cents"`
	Status             string    `json:"status"`
	HoldExpiresAt      time.Time `json:"hold_expires_at"`
	PaymentRedirectURL string    `json:"payment_redirect_url,omitempty"`
	PaymentRef         string    `json:"payment_ref,omitempty"`
	CancelReason       string    `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func toResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:     b.ID,
		ShowID:        b.ShowID,
		SeatIDs:       b.SeatIDs,
		AmountCents:   b.AmountCents,
		Status:        string(b.Status),
		HoldExpiresAt: b.HoldExpiresAt,
		PaymentRef:    b.PaymentRef,
		CancelReason:  b.CancelReason,
		CreatedAt:     b.CreatedAt,
	}
	if b.Status == model.BookingPendingPayment {
		resp.PaymentRedirectURL = b.PaymentRedirectURL
	}
	return resp
}

// getUserID returns the authenticated caller or writes a 401.
func getUserID(c echo.Context) (string, bool) {
	id := middleware.UserID(c)
	return id, id != ""
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody{"unauthorized", "authentication required", nil})
}

// Create handles POST /v1/bookings.  A 409 lists the seats that were
// already taken; nothing is held in that case.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return unauthenticated(c)
	}
	var req createBookingRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	b, err := h.svc.CreateBooking(c.Request().Context(), req.ShowID, userID, req.SeatIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toResponse(b))
}

// List handles GET /v1/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return unauthenticated(c)
	}
	list, err := h.svc.ListBookings(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toResponse(b))
	}
	return c.JSON(http.StatusOK, map[string]any{"bookings": out})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	return h.single(c, h.svc.GetBooking)
}

// Checkout handles POST /v1/bookings/:id/checkout.
func (h *BookingHandler) Checkout(c echo.Context) error {
	return h.single(c, h.svc.Checkout)
}

// Extend handles POST /v1/bookings/:id/extend.
func (h *BookingHandler) Extend(c echo.Context) error {
	return h.single(c, h.svc.ExtendHold)
}

// Cancel handles POST /v1/bookings/:id/cancel.  The body is optional.
func (h *BookingHandler) Cancel(c echo.Context) error {
	var req cancelBookingRequest
	if c.Request().ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return writeError(c, err)
		}
	}
	return h.single(c, func(ctx context.Context, bookingID, userID string) (model.Booking, error) {
		return h.svc.CancelBooking(ctx, bookingID, userID, req.Reason)
	})
}

func (h *BookingHandler) single(c echo.Context, op func(ctx context.Context, bookingID, userID string) (model.Booking, error)) error {
	userID, ok := getUserID(c)
	if !ok {
		return unauthenticated(c)
	}
	b, err := op(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(b))
}
