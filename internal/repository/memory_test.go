package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func pending(id, user string, created time.Time) model.Booking {
	return model.Booking{
		ID:            id,
		ShowID:        "s1",
		UserID:        user,
		SeatIDs:       []string{"A1"},
		Status:        model.BookingPendingPayment,
		HoldExpiresAt: created.Add(10 * time.Minute),
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestMemoryBookingRepo_TransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryBookingRepo()
	require.NoError(t, repo.Create(ctx, pending("b1", "u1", t0)))
	require.Error(t, repo.Create(ctx, pending("b1", "u1", t0)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Transition(ctx, "b1", model.BookingTransition{
				From: model.BookingPendingPayment, To: model.BookingConfirmed, PaymentRef: "p", At: t0,
			})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	b, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, "p", b.PaymentRef)
	require.ErrorIs(t, repo.UpdateHoldExpiry(ctx, "b1", t0.Add(time.Hour), t0), model.ErrInvalidState)
}

func TestMemoryBookingRepo_Queries(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryBookingRepo()
	require.NoError(t, repo.Create(ctx, pending("old", "u1", t0)))
	require.NoError(t, repo.Create(ctx, pending("new", "u1", t0.Add(5*time.Minute))))
	require.NoError(t, repo.Create(ctx, pending("other", "u2", t0)))

	list, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)

	list[0].SeatIDs[0] = "Z9"
	again, err := repo.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "A1", again.SeatIDs[0])

	stale, err := repo.ListStalePending(ctx, t0.Add(12*time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	stale, err = repo.ListStalePending(ctx, t0.Add(12*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	require.NoError(t, repo.SetPaymentSession(ctx, "old", model.PaymentSession{Ref: "ps", RedirectURL: "https://pay"}, t0))
	b, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "ps", b.PaymentSessionRef)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, model.ErrBookingNotFound)
}

func TestMemoryConflictRepo_RecordOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConflictRepo()
	c := model.ReconciliationConflict{ID: "c1", BookingID: "b1", PaymentRef: "p1", DetectedAt: t0}

	created, err := repo.Record(ctx, c)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.Record(ctx, c)
	require.NoError(t, err)
	assert.False(t, created)

	c2 := c
	c2.ID, c2.PaymentRef, c2.DetectedAt = "c2", "p2", t0.Add(time.Minute)
	created, err = repo.Record(ctx, c2)
	require.NoError(t, err)
	assert.True(t, created)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)
}
