package booking

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

// Repository persists bookings.  Transition is a compare-and-set on the
// status: it reports false, without error, when the stored status is no
// longer t.From.
type Repository interface {
	Create(ctx context.Context, b model.Booking) error
	Get(ctx context.Context, id string) (model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	SetPaymentSession(ctx context.Context, id string, s model.PaymentSession, at time.Time) error
	UpdateHoldExpiry(ctx context.Context, id string, expiresAt, at time.Time) error
	Transition(ctx context.Context, id string, t model.BookingTransition) (bool, error)
	ListStalePending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
}

// Holds is the slice of the lock manager bookings need.
type Holds interface {
	TryHold(ctx context.Context, showID string, seatIDs []string, holderToken string, ttl time.Duration) (model.HoldHandle, error)
	Renew(ctx context.Context, h model.HoldHandle, ttl time.Duration) (model.HoldHandle, error)
	Release(ctx context.Context, h model.HoldHandle) error
	Promote(ctx context.Context, h model.HoldHandle) error
	Snapshot(ctx context.Context, showID string) (model.Snapshot, error)
}

// Catalog resolves a show and its priced seat map.
type Catalog interface {
	Show(ctx context.Context, showID string) (model.Show, *seatmap.SeatMap, error)
}

// PaymentGateway opens a payment session for a pending booking.
type PaymentGateway interface {
	CreateSession(ctx context.Context, b model.Booking) (model.PaymentSession, error)
}

// EventPublisher announces confirmed bookings and escalates
// reconciliation conflicts.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, b model.Booking) error
	PublishReconciliationConflict(ctx context.Context, c model.ReconciliationConflict) error
}

// ConflictRecorder stores reconciliation conflicts.  Record reports false
// when the (booking, payment ref) pair was already recorded.
type ConflictRecorder interface {
	Record(ctx context.Context, c model.ReconciliationConflict) (bool, error)
}
