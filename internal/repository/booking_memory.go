package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// MemoryBookingRepo keeps bookings in process.  It backs the memory
// deployment and tests.
type MemoryBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]model.Booking
}

func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{bookings: make(map[string]model.Booking)}
}

func cloneBooking(b model.Booking) model.Booking {
	b.SeatIDs = slices.Clone(b.SeatIDs)
	return b
}

func (r *MemoryBookingRepo) Create(_ context.Context, b model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	r.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *MemoryBookingRepo) Get(_ context.Context, id string) (model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return model.Booking{}, model.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (r *MemoryBookingRepo) ListByUser(_ context.Context, userID string) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Booking, 0)
	for _, b := range r.bookings {
		if b.UserID == userID {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryBookingRepo) SetPaymentSession(_ context.Context, id string, s model.PaymentSession, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return model.ErrBookingNotFound
	}
	b.PaymentSessionRef = s.Ref
	b.PaymentRedirectURL = s.RedirectURL
	b.UpdatedAt = at
	r.bookings[id] = b
	return nil
}

func (r *MemoryBookingRepo) UpdateHoldExpiry(_ context.Context, id string, expiresAt, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != model.BookingPendingPayment {
		return fmt.Errorf("%w: booking %s is not pending", model.ErrInvalidState, id)
	}
	b.HoldExpiresAt = expiresAt
	b.UpdatedAt = at
	r.bookings[id] = b
	return nil
}

func (r *MemoryBookingRepo) Transition(_ context.Context, id string, t model.BookingTransition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != t.From {
		return false, nil
	}
	b.Status = t.To
	b.UpdatedAt = t.At
	if t.PaymentRef != "" {
		b.PaymentRef = t.PaymentRef
	}
	if t.Reason != "" {
		b.CancelReason = t.Reason
	}
	r.bookings[id] = b
	return true, nil
}

func (r *MemoryBookingRepo) ListStalePending(_ context.Context, now time.Time, limit int) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Booking
	for _, b := range r.bookings {
		if b.Status == model.BookingPendingPayment && !now.Before(b.HoldExpiresAt) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HoldExpiresAt.Before(out[j].HoldExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
