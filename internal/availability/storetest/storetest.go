// Package storetest is a conformance suite every availability.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/availability"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// Factory returns a store for one subtest.  Shared backends may reuse
// state between calls; the suite uses fresh show ids everywhere.
type Factory func(t *testing.T) availability.Store

var base = time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("all or nothing", func(t *testing.T) { testAllOrNothing(t, newStore(t)) })
	t.Run("expired hold is reclaimed", func(t *testing.T) { testReclaimExpired(t, newStore(t)) })
	t.Run("release is idempotent", func(t *testing.T) { testRelease(t, newStore(t)) })
	t.Run("promote is terminal", func(t *testing.T) { testPromote(t, newStore(t)) })
	t.Run("promote after expiry", func(t *testing.T) { testPromoteExpired(t, newStore(t)) })
	t.Run("renew", func(t *testing.T) { testRenew(t, newStore(t)) })
	t.Run("expire due", func(t *testing.T) { testExpireDue(t, newStore(t)) })
	t.Run("concurrent overlapping holds", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func newShow() string { return "show-" + uuid.NewString()[:8] }

func hold(t *testing.T, s availability.Store, showID, holder string, seats []string, now time.Time, ttl time.Duration) model.Hold {
	t.Helper()
	h, err := s.TryHold(context.Background(), availability.HoldRequest{
		HoldID:      uuid.NewString(),
		ShowID:      showID,
		SeatIDs:     seats,
		HolderToken: holder,
		ExpiresAt:   now.Add(ttl),
		Now:         now,
	})
	require.NoError(t, err)
	return h
}

func stateOf(t *testing.T, s availability.Store, showID, seat string, now time.Time) model.SeatState {
	t.Helper()
	snap, err := s.Snapshot(context.Background(), showID)
	require.NoError(t, err)
	return snap.State(seat, now)
}

func testAllOrNothing(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	first := hold(t, s, show, "b1", []string{"A1", "A2"}, base, 10*time.Minute)
	assert.Equal(t, model.HoldActive, first.Status)

	_, err := s.TryHold(ctx, availability.HoldRequest{
		HoldID: uuid.NewString(), ShowID: show, SeatIDs: []string{"A2", "A3"},
		HolderToken: "b2", ExpiresAt: base.Add(10 * time.Minute), Now: base,
	})
	require.ErrorIs(t, err, model.ErrSeatUnavailable)
	var sue *model.SeatUnavailableError
	require.True(t, errors.As(err, &sue))
	assert.Equal(t, []string{"A2"}, sue.SeatIDs)

	assert.Equal(t, model.SeatFree, stateOf(t, s, show, "A3", base))
	assert.Equal(t, model.SeatHeld, stateOf(t, s, show, "A1", base))
	assert.Equal(t, model.SeatHeld, stateOf(t, s, show, "A2", base))
}

func testReclaimExpired(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	old := hold(t, s, show, "b1", []string{"A1", "A2"}, base, time.Minute)

	later := base.Add(2 * time.Minute)
	fresh := hold(t, s, show, "b2", []string{"A2"}, later, 10*time.Minute)

	snap, err := s.Snapshot(ctx, show)
	require.NoError(t, err)
	assert.Equal(t, model.SeatFree, snap.State("A1", later), "every seat of the stale hold is freed")
	assert.Equal(t, fresh.ID, snap.Records["A2"].HoldID)

	assert.ErrorIs(t, s.Promote(ctx, old.Handle(), later), model.ErrHoldExpired)
	assert.Equal(t, model.SeatHeld, stateOf(t, s, show, "A2", later))
}

func testRelease(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	h := hold(t, s, show, "b1", []string{"C1", "C2"}, base, 10*time.Minute)

	require.NoError(t, s.Release(ctx, h.Handle(), base))
	require.NoError(t, s.Release(ctx, h.Handle(), base))
	require.NoError(t, s.Release(ctx, model.HoldHandle{HoldID: uuid.NewString(), ShowID: show, HolderToken: "x"}, base))

	assert.Equal(t, model.SeatFree, stateOf(t, s, show, "C1", base))
	assert.Equal(t, model.SeatFree, stateOf(t, s, show, "C2", base))
	assert.ErrorIs(t, s.Promote(ctx, h.Handle(), base), model.ErrHoldNotFound)

	again := hold(t, s, show, "b2", []string{"C1", "C2"}, base, 10*time.Minute)
	assert.NotEqual(t, h.ID, again.ID)
}

func testPromote(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	h := hold(t, s, show, "b1", []string{"D1", "D2"}, base, 10*time.Minute)

	require.NoError(t, s.Promote(ctx, h.Handle(), base.Add(time.Minute)))
	require.NoError(t, s.Promote(ctx, h.Handle(), base.Add(2*time.Minute)), "duplicate promote is harmless")
	assert.ErrorIs(t, s.Release(ctx, h.Handle(), base.Add(3*time.Minute)), model.ErrHoldPromoted)

	past := base.Add(time.Hour)
	expired, err := s.ExpireDue(ctx, past, 0)
	require.NoError(t, err)
	assert.False(t, lo.ContainsBy(expired, func(x model.Hold) bool { return x.ID == h.ID }))

	assert.Equal(t, model.SeatSold, stateOf(t, s, show, "D1", past))
	assert.Equal(t, model.SeatSold, stateOf(t, s, show, "D2", past))

	_, err = s.TryHold(ctx, availability.HoldRequest{
		HoldID: uuid.NewString(), ShowID: show, SeatIDs: []string{"D1"},
		HolderToken: "b2", ExpiresAt: past.Add(time.Minute), Now: past,
	})
	assert.ErrorIs(t, err, model.ErrSeatUnavailable)
}

func testPromoteExpired(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	h := hold(t, s, show, "b1", []string{"E1"}, base, time.Minute)

	at := base.Add(time.Minute)
	assert.ErrorIs(t, s.Promote(ctx, h.Handle(), at), model.ErrHoldExpired)
	assert.ErrorIs(t, s.Promote(ctx, h.Handle(), at), model.ErrHoldExpired)
	assert.Equal(t, model.SeatFree, stateOf(t, s, show, "E1", at))
}

func testRenew(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	h := hold(t, s, show, "b1", []string{"F1", "F2"}, base, time.Minute)

	renewed, err := s.Renew(ctx, h.Handle(), base.Add(20*time.Minute), base.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.Equal(base.Add(20*time.Minute)))
	assert.ElementsMatch(t, []string{"F1", "F2"}, renewed.SeatIDs)

	mid := base.Add(5 * time.Minute)
	assert.Equal(t, model.SeatHeld, stateOf(t, s, show, "F2", mid))
	_, err = s.TryHold(ctx, availability.HoldRequest{
		HoldID: uuid.NewString(), ShowID: show, SeatIDs: []string{"F2"},
		HolderToken: "b2", ExpiresAt: mid.Add(time.Minute), Now: mid,
	})
	assert.ErrorIs(t, err, model.ErrSeatUnavailable)

	wrong := h.Handle()
	wrong.HolderToken = "someone-else"
	_, err = s.Renew(ctx, wrong, mid.Add(time.Minute), mid)
	assert.ErrorIs(t, err, model.ErrHoldNotFound)

	_, err = s.Renew(ctx, h.Handle(), base.Add(time.Hour), base.Add(21*time.Minute))
	assert.ErrorIs(t, err, model.ErrHoldNotFound)
}

func testExpireDue(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	short := hold(t, s, show, "b1", []string{"G1", "G2"}, base, time.Minute)
	long := hold(t, s, show, "b2", []string{"G3"}, base, time.Hour)

	at := base.Add(2 * time.Minute)
	expired, err := s.ExpireDue(ctx, at, 0)
	require.NoError(t, err)
	mine := lo.Filter(expired, func(h model.Hold, _ int) bool { return h.ShowID == show })
	require.Len(t, mine, 1)
	assert.Equal(t, short.ID, mine[0].ID)
	assert.Equal(t, model.HoldExpired, mine[0].Status)
	assert.ElementsMatch(t, []string{"G1", "G2"}, mine[0].SeatIDs)
	assert.Equal(t, "b1", mine[0].HolderToken)

	again, err := s.ExpireDue(ctx, at, 0)
	require.NoError(t, err)
	assert.Empty(t, lo.Filter(again, func(h model.Hold, _ int) bool { return h.ShowID == show }))

	snap, err := s.Snapshot(ctx, show)
	require.NoError(t, err)
	assert.NotContains(t, snap.Records, "G1")
	assert.Equal(t, long.ID, snap.Records["G3"].HoldID)
}

func testConcurrent(t *testing.T, s availability.Store) {
	ctx := context.Background()
	show := newShow()
	const workers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []model.Hold
		losers  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			seats := []string{"H1", "H2"}
			if i%2 == 1 {
				seats = []string{"H2", "H3"}
			}
			h, err := s.TryHold(ctx, availability.HoldRequest{
				HoldID: uuid.NewString(), ShowID: show, SeatIDs: seats,
				HolderToken: uuid.NewString(), ExpiresAt: base.Add(time.Minute), Now: base,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, model.ErrSeatUnavailable)
				losers++
				return
			}
			winners = append(winners, h)
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, workers-1, losers)

	snap, err := s.Snapshot(ctx, show)
	require.NoError(t, err)
	for _, seat := range winners[0].SeatIDs {
		assert.Equal(t, winners[0].ID, snap.Records[seat].HoldID)
	}
}
