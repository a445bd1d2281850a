package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/booking"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

func TestOnPaymentSuccess_DuplicateCallbacks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"C1", "C2"})
	require.NoError(t, err)

	confirmed, err := f.confirm.OnPaymentSuccess(ctx, b.ID, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Status)

	again, err := f.confirm.OnPaymentSuccess(ctx, b.ID, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, again.Status)
	assert.Equal(t, "pay-1", again.PaymentRef)

	nConfirmed, nConflicts := f.events.counts()
	assert.Equal(t, 1, nConfirmed)
	assert.Zero(t, nConflicts)
	assert.Equal(t, model.SeatSold, f.state(t, "C1"))
	assert.Equal(t, model.SeatSold, f.state(t, "C2"))

	f.clock.Advance(time.Hour)
	assert.Equal(t, model.SeatSold, f.state(t, "C1"), "sold seats never expire")
}

func TestOnPaymentSuccess_ConcurrentCallbacks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"C3"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.confirm.OnPaymentSuccess(ctx, b.ID, "pay-1")
			assert.NoError(t, err)
			assert.Equal(t, model.BookingConfirmed, got.Status)
		}()
	}
	wg.Wait()

	nConfirmed, _ := f.events.counts()
	assert.Equal(t, 1, nConfirmed)
}

func TestOnPaymentSuccess_SeatResoldAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"D1"})
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	second, err := f.svc.CreateBooking(ctx, showID, "u2", []string{"D1"})
	require.NoError(t, err)
	_, err = f.confirm.OnPaymentSuccess(ctx, second.ID, "pay-2")
	require.NoError(t, err)

	late, err := f.confirm.OnPaymentSuccess(ctx, first.ID, "pay-1")
	require.ErrorIs(t, err, model.ErrPaymentReconciliationConflict)
	assert.Equal(t, model.BookingExpired, late.Status)

	_, err = f.confirm.OnPaymentSuccess(ctx, first.ID, "pay-1")
	require.ErrorIs(t, err, model.ErrPaymentReconciliationConflict)

	conflicts, err := f.conflicts.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1, "a conflict is recorded once per payment")
	assert.Equal(t, booking.ConflictHoldLost, conflicts[0].Reason)
	assert.Equal(t, []string{"D1"}, conflicts[0].SeatIDs)
	assert.Equal(t, "pay-1", conflicts[0].PaymentRef)

	_, nConflicts := f.events.counts()
	assert.Equal(t, 1, nConflicts)

	got, err := f.repo.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, model.SeatSold, f.state(t, "D1"))
}

func TestOnPaymentSuccess_SettledBookings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	confirmed, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"A1"})
	require.NoError(t, err)
	_, err = f.confirm.OnPaymentSuccess(ctx, confirmed.ID, "pay-1")
	require.NoError(t, err)
	_, err = f.confirm.OnPaymentSuccess(ctx, confirmed.ID, "pay-other")
	require.ErrorIs(t, err, model.ErrPaymentReconciliationConflict)

	cancelled, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"A2"})
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, cancelled.ID, "u1", "")
	require.NoError(t, err)
	_, err = f.confirm.OnPaymentSuccess(ctx, cancelled.ID, "pay-2")
	require.ErrorIs(t, err, model.ErrPaymentReconciliationConflict)
	assert.Equal(t, model.SeatFree, f.state(t, "A2"))

	conflicts, err := f.conflicts.List(ctx, 0)
	require.NoError(t, err)
	reasons := []string{conflicts[0].Reason, conflicts[1].Reason}
	assert.ElementsMatch(t, []string{booking.ConflictDuplicatePayment, booking.ConflictBookingCancelled}, reasons)
}

func TestPaymentForUnknownBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.confirm.OnPaymentSuccess(ctx, "missing", "pay-3")
	require.ErrorIs(t, err, model.ErrPaymentReconciliationConflict)
	_, err = f.confirm.OnPaymentSuccess(ctx, "missing", "pay-3")
	require.ErrorIs(t, err, model.ErrPaymentReconciliationConflict)

	conflicts, err := f.conflicts.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "missing", conflicts[0].BookingID)
	assert.Equal(t, "pay-3", conflicts[0].PaymentRef)
	assert.Equal(t, booking.ConflictBookingUnknown, conflicts[0].Reason)
	_, published := f.events.counts()
	assert.Equal(t, 1, published)

	_, err = f.confirm.OnPaymentFailure(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
}

func TestOnPaymentFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"B2", "B3"})
	require.NoError(t, err)

	failed, err := f.confirm.OnPaymentFailure(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, failed.Status)
	assert.Equal(t, booking.ReasonPaymentFailed, failed.CancelReason)
	assert.Equal(t, model.SeatFree, f.state(t, "B2"))

	again, err := f.confirm.OnPaymentFailure(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, again.Status)

	paid, err := f.svc.CreateBooking(ctx, showID, "u1", []string{"B1"})
	require.NoError(t, err)
	_, err = f.confirm.OnPaymentSuccess(ctx, paid.ID, "pay-1")
	require.NoError(t, err)
	_, err = f.confirm.OnPaymentFailure(ctx, paid.ID)
	require.ErrorIs(t, err, model.ErrInvalidState)
	assert.Equal(t, model.SeatSold, f.state(t, "B1"))
}
