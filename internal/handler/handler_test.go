package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/availability"
	"github.com/iliyamo/cinema-booking-core/internal/catalog"
	"github.com/iliyamo/cinema-booking-core/internal/clock"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type stubBookings struct {
	created model.Booking
	err     error
	gotUser string
	gotArgs []string
}

func (s *stubBookings) CreateBooking(_ context.Context, showID, userID string, seatIDs []string) (model.Booking, error) {
	s.gotUser = userID
	s.gotArgs = append([]string{showID}, seatIDs...)
	return s.created, s.err
}

func (s *stubBookings) CancelBooking(_ context.Context, id, userID, reason string) (model.Booking, error) {
	s.gotUser = userID
	s.gotArgs = []string{id, reason}
	b := s.created
	b.Status = model.BookingCancelled
	b.CancelReason = reason
	return b, s.err
}

func (s *stubBookings) Checkout(_ context.Context, id, userID string) (model.Booking, error) {
	return s.created, s.err
}

func (s *stubBookings) ExtendHold(_ context.Context, id, userID string) (model.Booking, error) {
	return s.created, s.err
}

func (s *stubBookings) GetBooking(_ context.Context, id, userID string) (model.Booking, error) {
	s.gotUser = userID
	s.gotArgs = []string{id}
	return s.created, s.err
}

func (s *stubBookings) ListBookings(_ context.Context, userID string) ([]model.Booking, error) {
	return []model.Booking{s.created}, s.err
}

type stubConfirmer struct {
	booking model.Booking
	err     error
	calls   []string
}

func (s *stubConfirmer) OnPaymentSuccess(_ context.Context, id, ref string) (model.Booking, error) {
	s.calls = append(s.calls, "success:"+id+":"+ref)
	return s.booking, s.err
}

func (s *stubConfirmer) OnPaymentFailure(_ context.Context, id string) (model.Booking, error) {
	s.calls = append(s.calls, "failure:"+id)
	return s.booking, s.err
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func withUser(user string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user != "" {
				c.Set("user_id", user)
			}
			return next(c)
		}
	}
}

func do(e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func pendingBooking() model.Booking {
	return model.Booking{
		ID:                 "b1",
		ShowID:             "s1",
		UserID:             "u1",
		SeatIDs:            []string{"A1", "A2"},
		AmountCents:        2400,
		Status:             model.BookingPendingPayment,
		HoldExpiresAt:      now.Add(10 * time.Minute),
		PaymentRedirectURL: "https://pay.example/x",
		CreatedAt:          now,
	}
}

func TestBookingHandler_Create(t *testing.T) {
	svc := &stubBookings{created: pendingBooking()}
	e := newEcho()
	h := NewBookingHandler(svc)
	e.POST("/v1/bookings", h.Create, withUser("u1"))

	rec, body := do(e, http.MethodPost, "/v1/bookings", `{"show_id":"s1","seat_ids":["A1","A2"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "b1", body["booking_id"])
	assert.Equal(t, "https://pay.example/x", body["payment_redirect_url"])
	assert.EqualValues(t, 2400, body["amount_cents"])
	assert.Equal(t, "2026-03-01T18:10:00Z", body["hold_expires_at"])
	assert.Equal(t, "u1", svc.gotUser)
	assert.Equal(t, []string{"s1", "A1", "A2"}, svc.gotArgs)

	svc.err = &model.SeatUnavailableError{ShowID: "s1", SeatIDs: []string{"A2"}}
	rec, body = do(e, http.MethodPost, "/v1/bookings", `{"show_id":"s1","seat_ids":["A1","A2"]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "seat_unavailable", body["error"])
	assert.Equal(t, map[string]any{"unavailable": []any{"A2"}}, body["details"])
}

func TestBookingHandler_CreateValidation(t *testing.T) {
	e := newEcho()
	h := NewBookingHandler(&stubBookings{created: pendingBooking()})
	e.POST("/v1/bookings", h.Create, withUser("u1"))
	e.POST("/anon", h.Create, withUser(""))

	for _, payload := range []string{`{"seat_ids":["A1"]}`, `{"show_id":"s1","seat_ids":[]}`, `{"show_id":"s1","seat_ids":[""]}`, `{`} {
		rec, body := do(e, http.MethodPost, "/v1/bookings", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
		assert.Equal(t, "validation_error", body["error"], payload)
	}

	rec, _ := do(e, http.MethodPost, "/anon", `{"show_id":"s1","seat_ids":["A1"]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrHoldExpired, http.StatusGone, "hold_expired"},
		{model.ErrHoldNotFound, http.StatusGone, "hold_not_found"},
		{model.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{model.ErrBookingNotFound, http.StatusNotFound, "not_found"},
		{model.ErrForbidden, http.StatusForbidden, "forbidden"},
		{model.ErrShowNotBookable, http.StatusUnprocessableEntity, "show_not_bookable"},
		{&model.UnknownSeatError{SeatIDs: []string{"Z9"}}, http.StatusBadRequest, "validation_error"},
		{context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			e := newEcho()
			h := NewBookingHandler(&stubBookings{err: tc.err})
			e.POST("/v1/bookings/:id/extend", h.Extend, withUser("u1"))
			rec, body := do(e, http.MethodPost, "/v1/bookings/b1/extend", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestBookingHandler_CancelAndGet(t *testing.T) {
	svc := &stubBookings{created: pendingBooking()}
	e := newEcho()
	h := NewBookingHandler(svc)
	e.POST("/v1/bookings/:id/cancel", h.Cancel, withUser("u1"))
	e.GET("/v1/bookings/:id", h.Get, withUser("u1"))
	e.GET("/v1/bookings", h.List, withUser("u1"))

	rec, body := do(e, http.MethodPost, "/v1/bookings/b1/cancel", `{"reason":"changed plans"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Nil(t, body["payment_redirect_url"])
	assert.Equal(t, []string{"b1", "changed plans"}, svc.gotArgs)

	rec, _ = do(e, http.MethodPost, "/v1/bookings/b1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(e, http.MethodGet, "/v1/bookings/b1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING_PAYMENT", body["status"])
	assert.Equal(t, []string{"b1"}, svc.gotArgs)

	rec, body = do(e, http.MethodGet, "/v1/bookings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["bookings"], 1)
}

func TestPaymentHandler_Callback(t *testing.T) {
	confirmed := pendingBooking()
	confirmed.Status = model.BookingConfirmed
	conf := &stubConfirmer{booking: confirmed}
	e := newEcho()
	e.POST("/cb", NewPaymentHandler(conf).Callback)

	rec, body := do(e, http.MethodPost, "/cb", `{"booking_id":"b1","payment_ref":"p1","status":"success"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", body["status"])

	rec, _ = do(e, http.MethodPost, "/cb", `{"booking_id":"b1","payment_ref":"p1","status":"failure"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"success:b1:p1", "failure:b1"}, conf.calls)

	rec, body = do(e, http.MethodPost, "/cb", `{"booking_id":"b1","payment_ref":"p1","status":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"Status": "oneof"}, body["details"])

	conf.err = model.ErrPaymentReconciliationConflict
	rec, body = do(e, http.MethodPost, "/cb", `{"booking_id":"b1","payment_ref":"p2","status":"success"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "reconciliation_conflict", body["error"])
}

func TestShowHandler(t *testing.T) {
	ctx := context.Background()
	layout, err := seatmap.ParseLayout("screen-1", []string{"A1:STD . A2:VIP", "B1:STD B2:STD"})
	require.NoError(t, err)
	sm, err := seatmap.Build("s1", layout, []seatmap.Tier{{Code: "STD", DisplayName: "Standard", PriceCents: 1000}, {Code: "VIP", PriceCents: 1800}}, nil)
	require.NoError(t, err)
	cat := catalog.NewStatic()
	cat.Add(model.Show{ID: "s1", ScreenID: "screen-1", Title: "Premiere", StartsAt: now.Add(time.Hour), Status: model.ShowScheduled}, sm)

	clk := clock.NewFake(now)
	locks := availability.NewLockManager(availability.NewMemoryStore(), availability.WithClock(clk))
	_, err = locks.TryHold(ctx, "s1", []string{"A2"}, "t1", 0)
	require.NoError(t, err)
	sold, err := locks.TryHold(ctx, "s1", []string{"B1"}, "t2", 0)
	require.NoError(t, err)
	require.NoError(t, locks.Promote(ctx, sold))

	e := newEcho()
	h := NewShowHandler(availability.NewSnapshotReader(cat, locks), cat)
	e.GET("/v1/shows/:id/availability", h.GetAvailability)
	e.GET("/v1/shows/:id/seatmap", h.GetSeatMap)

	rec, body := do(e, http.MethodGet, "/v1/shows/s1/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"B1"}, body["occupied_seats"])
	assert.Equal(t, []any{"A2"}, body["locked_seats"])
	assert.Equal(t, []any{"A1", "B2"}, body["free_seats"])

	clk.Advance(11 * time.Minute)
	_, body = do(e, http.MethodGet, "/v1/shows/s1/availability", "")
	assert.Equal(t, []any{}, body["locked_seats"])

	rec, body = do(e, http.MethodGet, "/v1/shows/s1/seatmap", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := body["rows"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].([]any)
	assert.Nil(t, first[1], "aisle")
	assert.Equal(t, map[string]any{"seat_id": "A2", "tier": "VIP", "price_cents": float64(1800)}, first[2])

	rec, body = do(e, http.MethodGet, "/v1/shows/nope/availability", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)
	rec, _ := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
