package booking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-core/internal/availability"
	"github.com/iliyamo/cinema-booking-core/internal/booking"
	"github.com/iliyamo/cinema-booking-core/internal/catalog"
	"github.com/iliyamo/cinema-booking-core/internal/clock"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

var start = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

const showID = "show-1"

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (g *fakeGateway) CreateSession(_ context.Context, b model.Booking) (model.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail {
		return model.PaymentSession{}, errors.New("gateway unavailable")
	}
	return model.PaymentSession{
		Ref:         fmt.Sprintf("ps-%d", g.calls),
		RedirectURL: "https://pay.example/checkout/" + b.ID,
	}, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	confirmed []model.Booking
	conflicts []model.ReconciliationConflict
}

func (e *fakeEvents) PublishBookingConfirmed(_ context.Context, b model.Booking) error {
	e.mu.Lock()
	e.confirmed = append(e.confirmed, b)
	e.mu.Unlock()
	return nil
}

func (e *fakeEvents) PublishReconciliationConflict(_ context.Context, c model.ReconciliationConflict) error {
	e.mu.Lock()
	e.conflicts = append(e.conflicts, c)
	e.mu.Unlock()
	return nil
}

func (e *fakeEvents) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.confirmed), len(e.conflicts)
}

type fixture struct {
	clock     *clock.Fake
	locks     *availability.LockManager
	repo      *repository.MemoryBookingRepo
	conflicts *repository.MemoryConflictRepo
	gateway   *fakeGateway
	events    *fakeEvents
	svc       *booking.Service
	confirm   *booking.ConfirmationHandler
}

func newFixture(t *testing.T, opts ...booking.Option) *fixture {
	t.Helper()
	layout := seatmap.GridLayout("screen-1", 4, 4, func(int) string { return "STD" })
	sm, err := seatmap.Build(showID, layout, []seatmap.Tier{{Code: "STD", PriceCents: 1200}}, nil)
	require.NoError(t, err)
	cat := catalog.NewStatic()
	cat.Add(model.Show{ID: showID, ScreenID: "screen-1", Title: "Late show", StartsAt: start.Add(24 * time.Hour), Status: model.ShowScheduled}, sm)
	cat.Add(model.Show{ID: "gone", ScreenID: "screen-1", StartsAt: start.Add(time.Hour), Status: model.ShowCancelled}, sm)

	f := &fixture{
		clock:     clock.NewFake(start),
		repo:      repository.NewMemoryBookingRepo(),
		conflicts: repository.NewMemoryConflictRepo(),
		gateway:   &fakeGateway{},
		events:    &fakeEvents{},
	}
	f.locks = availability.NewLockManager(availability.NewMemoryStore(), availability.WithClock(f.clock))
	f.svc = booking.NewService(f.repo, f.locks, cat, f.gateway, append([]booking.Option{booking.WithClock(f.clock)}, opts...)...)
	f.confirm = booking.NewConfirmationHandler(f.repo, f.locks, f.conflicts, f.events, booking.WithConfirmationClock(f.clock))
	return f
}

func (f *fixture) state(t *testing.T, seat string) model.SeatState {
	t.Helper()
	snap, err := f.locks.Snapshot(context.Background(), showID)
	require.NoError(t, err)
	return snap.State(seat, f.clock.Now())
}
