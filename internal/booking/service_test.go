package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/booking"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"A1", " A2", "A1", ""})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPendingPayment, b.Status)
	assert.ElementsMatch(t, []string{"A1", "A2"}, b.SeatIDs)
	assert.EqualValues(t, 2400, b.AmountCents)
	assert.Equal(t, start.Add(10*time.Minute), b.HoldExpiresAt)
	assert.Equal(t, "https://pay.example/checkout/"+b.ID, b.PaymentRedirectURL)
	assert.Equal(t, model.SeatHeld, f.state(t, "A1"))

	stored, err := f.repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "ps-1", stored.PaymentSessionRef)

	_, err = f.svc.CreateBooking(ctx, showID, "u2", []string{"A3", "A2"})
	require.ErrorIs(t, err, model.ErrSeatUnavailable)
	assert.Equal(t, model.SeatFree, f.state(t, "A3"), "a rejected booking holds nothing")
}

func TestCreateBooking_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, booking.WithMaxSeats(2))

	_, err := f.svc.CreateBooking(ctx, showID, "u1", nil)
	assert.ErrorIs(t, err, model.ErrNoSeats)
	_, err = f.svc.CreateBooking(ctx, showID, "u1", []string{"A1", "A2", "A3"})
	assert.ErrorIs(t, err, model.ErrTooManySeats)
	_, err = f.svc.CreateBooking(ctx, "missing", "u1", []string{"A1"})
	assert.ErrorIs(t, err, model.ErrShowNotFound)
	_, err = f.svc.CreateBooking(ctx, "gone", "u1", []string{"A1"})
	assert.ErrorIs(t, err, model.ErrShowNotBookable)
	_, err = f.svc.CreateBooking(ctx, showID, "u1", []string{"Z99"})
	assert.ErrorIs(t, err, model.ErrUnknownSeat)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestCreateBooking_GatewayFailureReleasesSeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.fail = true

	_, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"B1"})
	require.Error(t, err)
	assert.Equal(t, model.SeatFree, f.state(t, "B1"))

	list, err := f.svc.ListBookings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.BookingCancelled, list[0].Status)
	assert.Equal(t, booking.ReasonPaymentSessionFailed, list[0].CancelReason)
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"C1"})
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, b.ID, "intruder", "")
	require.ErrorIs(t, err, model.ErrForbidden)

	cancelled, err := f.svc.CancelBooking(ctx, b.ID, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Equal(t, booking.ReasonUserCancelled, cancelled.CancelReason)
	assert.Equal(t, model.SeatFree, f.state(t, "C1"))

	_, err = f.svc.CancelBooking(ctx, b.ID, "u1", "")
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestExtendHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"D1"})
	require.NoError(t, err)

	f.clock.Advance(8 * time.Minute)
	extended, err := f.svc.ExtendHold(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, start.Add(18*time.Minute), extended.HoldExpiresAt)

	f.clock.Advance(9 * time.Minute)
	_, err = f.svc.Checkout(ctx, b.ID, "u1")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.ExtendHold(ctx, b.ID, "u1")
	require.ErrorIs(t, err, model.ErrHoldExpired)

	stored, err := f.repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingExpired, stored.Status)
}

func TestCheckout_ExpiredHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"D2"})
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.svc.Checkout(ctx, b.ID, "u1")
	require.ErrorIs(t, err, model.ErrHoldExpired)
	_, err = f.svc.Checkout(ctx, b.ID, "u1")
	require.ErrorIs(t, err, model.ErrHoldExpired)
	assert.Equal(t, model.SeatFree, f.state(t, "D2"))
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	early, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"A1", "A2"})
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	late, err := f.svc.CreateBooking(ctx, showID, "u2", []string{"A3"})
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	_, err = f.locks.Sweep(ctx)
	require.NoError(t, err)
	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.svc.GetBooking(ctx, early.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingExpired, got.Status)
	assert.Equal(t, booking.ReasonHoldExpired, got.CancelReason)
	got, err = f.svc.GetBooking(ctx, late.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, model.BookingPendingPayment, got.Status)

	assert.Equal(t, model.SeatFree, f.state(t, "A1"))
	assert.Equal(t, model.SeatHeld, f.state(t, "A3"))
}

func TestSweepHook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"B4"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	expired, err := f.locks.Sweep(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.SweepHook(ctx, expired))

	got, err := f.repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingExpired, got.Status)
}
