package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/handler"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/payment"
	"github.com/iliyamo/cinema-booking-core/internal/utils"
)

type noopBookings struct{}

func (noopBookings) CreateBooking(context.Context, string, string, []string) (model.Booking, error) {
	return model.Booking{ID: "b1", Status: model.BookingPendingPayment}, nil
}
func (noopBookings) CancelBooking(context.Context, string, string, string) (model.Booking, error) {
	return model.Booking{}, model.ErrInvalidState
}
func (noopBookings) Checkout(context.Context, string, string) (model.Booking, error) {
	return model.Booking{}, model.ErrHoldExpired
}
func (noopBookings) ExtendHold(context.Context, string, string) (model.Booking, error) {
	return model.Booking{}, model.ErrHoldExpired
}
func (noopBookings) GetBooking(context.Context, string, string) (model.Booking, error) {
	return model.Booking{}, model.ErrBookingNotFound
}
func (noopBookings) ListBookings(context.Context, string) ([]model.Booking, error) {
	return nil, nil
}

type noopConfirmer struct{}

func (noopConfirmer) OnPaymentSuccess(_ context.Context, id, _ string) (model.Booking, error) {
	return model.Booking{ID: id, Status: model.BookingConfirmed}, nil
}
func (noopConfirmer) OnPaymentFailure(_ context.Context, id string) (model.Booking, error) {
	return model.Booking{ID: id, Status: model.BookingCancelled}, nil
}

func TestRoutes(t *testing.T) {
	e := echo.New()
	e.Validator = handler.NewValidator()
	RegisterRoutes(e)
	RegisterCustomer(e, handler.NewBookingHandler(noopBookings{}), "jwt", nil)
	RegisterPayments(e, handler.NewPaymentHandler(noopConfirmer{}), "cb")

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(httptest.NewRequest(http.MethodGet, "/v1/bookings", nil)).Code)

	tok, err := utils.NewAccessToken("jwt", "u1", RoleCustomer, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/bookings/b1", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	assert.Equal(t, http.StatusNotFound, serve(req).Code)

	owner, err := utils.NewAccessToken("jwt", "u2", "OWNER", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+owner.Token)
	assert.Equal(t, http.StatusForbidden, serve(req).Code)

	body := `{"booking_id":"b1","payment_ref":"p1","status":"success"}`
	req = httptest.NewRequest(http.MethodPost, "/v1/payments/callback", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(payment.SignatureHeader, payment.Sign("cb", []byte(body)))
	assert.Equal(t, http.StatusOK, serve(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/payments/callback", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusUnauthorized, serve(req).Code)
}
