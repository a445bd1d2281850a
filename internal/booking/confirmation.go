package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking-core/internal/clock"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/metrics"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const (
	ConflictHoldLost         = "hold_lost"
	ConflictDuplicatePayment = "duplicate_payment"
	ConflictBookingCancelled = "booking_cancelled"
	ConflictBookingExpired   = "booking_expired"
	ConflictBookingUnknown   = "booking_unknown"
)

// ConfirmationHandler applies asynchronous payment outcomes to bookings.
//
//	PENDING_PAYMENT --success--> CONFIRMED
//	PENDING_PAYMENT --failure--> CANCELLED
//	PENDING_PAYMENT --hold lost-> EXPIRED (+ reconciliation conflict)
//
// Every status change is a compare-and-set, so duplicate or concurrent
// callbacks settle on a single outcome.
type ConfirmationHandler struct {
	repo      Repository
	holds     Holds
	conflicts ConflictRecorder
	events    EventPublisher
	clock     clock.Clock
	newID     func() string
}

type ConfirmationOption func(*ConfirmationHandler)

func WithConfirmationClock(c clock.Clock) ConfirmationOption {
	return func(h *ConfirmationHandler) {
		if c != nil {
			h.clock = c
		}
	}
}

// NewConfirmationHandler wires the handler.  events may be nil.
func NewConfirmationHandler(repo Repository, holds Holds, conflicts ConflictRecorder, events EventPublisher, opts ...ConfirmationOption) *ConfirmationHandler {
	h := &ConfirmationHandler{
		repo:      repo,
		holds:     holds,
		conflicts: conflicts,
		events:    events,
		clock:     clock.Real{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnPaymentSuccess confirms the booking and sells its seats.  A repeated
// signal with the same payment ref is a no-op.  When the seats can no
// longer be sold the payment is recorded as a reconciliation conflict and
// ErrPaymentReconciliationConflict is returned; this includes payments for
// unknown bookings.
func (h *ConfirmationHandler) OnPaymentSuccess(ctx context.Context, bookingID, paymentRef string) (model.Booking, error) {
	b, err := h.repo.Get(ctx, bookingID)
	if errors.Is(err, model.ErrBookingNotFound) {
		return model.Booking{}, h.conflict(ctx, model.Booking{ID: bookingID}, paymentRef, ConflictBookingUnknown)
	}
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.BookingPendingPayment {
		return h.settled(ctx, b, paymentRef)
	}

	err = h.holds.Promote(ctx, b.HoldHandle())
	switch {
	case errors.Is(err, model.ErrHoldExpired), errors.Is(err, model.ErrHoldNotFound):
		return h.holdLost(ctx, b, paymentRef)
	case err != nil:
		return b, fmt.Errorf("promote hold: %w", err)
	}

	now := h.clock.Now()
	ok, err := h.repo.Transition(ctx, b.ID, model.BookingTransition{
		From:       model.BookingPendingPayment,
		To:         model.BookingConfirmed,
		PaymentRef: paymentRef,
		At:         now,
	})
	if err != nil {
		return b, fmt.Errorf("confirm booking: %w", err)
	}
	if !ok {
		return h.reload(ctx, b.ID, paymentRef)
	}
	b.Status = model.BookingConfirmed
	b.PaymentRef = paymentRef
	b.UpdatedAt = now
	metrics.BookingTransitions.WithLabelValues(string(model.BookingConfirmed)).Inc()

	log := logging.FromContext(ctx).WithFields(logrus.Fields{"booking_id": b.ID, "payment_ref": paymentRef})
	log.Info("booking confirmed")
	if h.events != nil {
		if err := h.events.PublishBookingConfirmed(ctx, b); err != nil {
			log.WithError(err).Warn("publish booking confirmed")
		}
	}
	return b, nil
}

// OnPaymentFailure cancels a pending booking and releases its seats.
// Cancelled and expired bookings are left alone; a confirmed booking
// cannot fail any more.
func (h *ConfirmationHandler) OnPaymentFailure(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := h.repo.Get(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	switch b.Status {
	case model.BookingCancelled, model.BookingExpired:
		return b, nil
	case model.BookingConfirmed:
		return b, fmt.Errorf("%w: booking already confirmed", model.ErrInvalidState)
	}

	if err := h.holds.Release(ctx, b.HoldHandle()); err != nil {
		if errors.Is(err, model.ErrHoldPromoted) {
			return b, fmt.Errorf("%w: payment already captured", model.ErrInvalidState)
		}
		return b, fmt.Errorf("release hold: %w", err)
	}
	now := h.clock.Now()
	ok, err := h.repo.Transition(ctx, b.ID, model.BookingTransition{
		From:   model.BookingPendingPayment,
		To:     model.BookingCancelled,
		Reason: ReasonPaymentFailed,
		At:     now,
	})
	if err != nil {
		return b, fmt.Errorf("cancel booking: %w", err)
	}
	if !ok {
		b, err = h.repo.Get(ctx, bookingID)
		if err != nil {
			return model.Booking{}, err
		}
		if b.Status == model.BookingConfirmed {
			return b, fmt.Errorf("%w: booking already confirmed", model.ErrInvalidState)
		}
		return b, nil
	}
	metrics.BookingTransitions.WithLabelValues(string(model.BookingCancelled)).Inc()
	b.Status = model.BookingCancelled
	b.CancelReason = ReasonPaymentFailed
	b.UpdatedAt = now
	return b, nil
}

func (h *ConfirmationHandler) holdLost(ctx context.Context, b model.Booking, paymentRef string) (model.Booking, error) {
	now := h.clock.Now()
	ok, err := h.repo.Transition(ctx, b.ID, model.BookingTransition{
		From:   model.BookingPendingPayment,
		To:     model.BookingExpired,
		Reason: ReasonHoldExpired,
		At:     now,
	})
	if err != nil {
		return b, fmt.Errorf("expire booking: %w", err)
	}
	if !ok {
		return h.reload(ctx, b.ID, paymentRef)
	}
	metrics.BookingTransitions.WithLabelValues(string(model.BookingExpired)).Inc()
	b.Status = model.BookingExpired
	b.CancelReason = ReasonHoldExpired
	b.UpdatedAt = now
	return b, h.conflict(ctx, b, paymentRef, ConflictHoldLost)
}

func (h *ConfirmationHandler) reload(ctx context.Context, bookingID, paymentRef string) (model.Booking, error) {
	b, err := h.repo.Get(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	return h.settled(ctx, b, paymentRef)
}

// settled handles a success signal for a booking that already left
// PENDING_PAYMENT.
func (h *ConfirmationHandler) settled(ctx context.Context, b model.Booking, paymentRef string) (model.Booking, error) {
	switch b.Status {
	case model.BookingConfirmed:
		if b.PaymentRef == paymentRef {
			return b, nil
		}
		return b, h.conflict(ctx, b, paymentRef, ConflictDuplicatePayment)
	case model.BookingCancelled:
		return b, h.conflict(ctx, b, paymentRef, ConflictBookingCancelled)
	case model.BookingExpired:
		return b, h.conflict(ctx, b, paymentRef, ConflictBookingExpired)
	}
	return b, fmt.Errorf("%w: unexpected status %s", model.ErrInvalidState, b.Status)
}

// conflict records, escalates and reports a payment that cannot be
// matched to sold seats.  It is recorded once per (booking, payment ref).
func (h *ConfirmationHandler) conflict(ctx context.Context, b model.Booking, paymentRef, reason string) error {
	c := model.ReconciliationConflict{
		ID:            h.newID(),
		BookingID:     b.ID,
		ShowID:        b.ShowID,
		UserID:        b.UserID,
		SeatIDs:       b.SeatIDs,
		PaymentRef:    paymentRef,
		AmountCents:   b.AmountCents,
		BookingStatus: b.Status,
		Reason:        reason,
		DetectedAt:    h.clock.Now(),
	}
	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id":     b.ID,
		"show_id":        b.ShowID,
		"user_id":        b.UserID,
		"seats":          b.SeatIDs,
		"payment_ref":    paymentRef,
		"amount_cents":   b.AmountCents,
		"booking_status": b.Status,
		"reason":         reason,
	})
	created, err := h.conflicts.Record(ctx, c)
	if err != nil {
		log.WithError(err).Error("record reconciliation conflict")
		return fmt.Errorf("record reconciliation conflict: %w", err)
	}
	if created {
		metrics.ReconciliationConflicts.WithLabelValues(reason).Inc()
		log.Error("payment reconciliation conflict")
		if h.events != nil {
			if err := h.events.PublishReconciliationConflict(ctx, c); err != nil {
				log.WithError(err).Warn("publish reconciliation conflict")
			}
		}
	}
	return fmt.Errorf("%w: booking %s: %s", model.ErrPaymentReconciliationConflict, b.ID, reason)
}
