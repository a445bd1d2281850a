// Package booking turns seat holds into bookings and drives them through
// the payment state machine.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking-core/internal/clock"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/metrics"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const (
	DefaultMaxSeats = 10
	staleBatch      = 500

	ReasonHoldExpired          = "hold_expired"
	ReasonPaymentFailed        = "payment_failed"
	ReasonPaymentSessionFailed = "payment_session_failed"
	ReasonUserCancelled        = "user_cancelled"
)

var errPaymentCaptured = fmt.Errorf("%w: payment already captured", model.ErrInvalidState)

// Service creates, extends, cancels and expires bookings.
type Service struct {
	repo     Repository
	holds    Holds
	catalog  Catalog
	payments PaymentGateway
	clock    clock.Clock
	maxSeats int
	newID    func() string
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMaxSeats bounds how many seats a single booking may cover.
func WithMaxSeats(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSeats = n
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewService(repo Repository, holds Holds, catalog Catalog, payments PaymentGateway, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		holds:    holds,
		catalog:  catalog,
		payments: payments,
		clock:    clock.Real{},
		maxSeats: DefaultMaxSeats,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBooking holds seatIDs for userID and opens a payment session.  On
// success the booking is PENDING_PAYMENT and carries the redirect URL.
// When any seat is taken nothing is held and no booking is created.
func (s *Service) CreateBooking(ctx context.Context, showID, userID string, seatIDs []string) (model.Booking, error) {
	seatIDs = lo.Uniq(lo.Without(lo.Map(seatIDs, func(id string, _ int) string { return strings.TrimSpace(id) }), ""))
	switch {
	case len(seatIDs) == 0:
		return model.Booking{}, model.ErrNoSeats
	case len(seatIDs) > s.maxSeats:
		return model.Booking{}, fmt.Errorf("%w: %d > %d", model.ErrTooManySeats, len(seatIDs), s.maxSeats)
	}

	show, sm, err := s.catalog.Show(ctx, showID)
	if err != nil {
		return model.Booking{}, err
	}
	now := s.clock.Now()
	if !show.Bookable(now) {
		return model.Booking{}, model.ErrShowNotBookable
	}
	amount, _, err := sm.Quote(seatIDs)
	if err != nil {
		return model.Booking{}, err
	}

	id := s.newID()
	handle, err := s.holds.TryHold(ctx, showID, seatIDs, id, 0)
	if err != nil {
		return model.Booking{}, err
	}

	b := model.Booking{
		ID:            id,
		ShowID:        showID,
		UserID:        userID,
		SeatIDs:       handle.SeatIDs,
		AmountCents:   amount,
		Status:        model.BookingPendingPayment,
		HoldID:        handle.HoldID,
		HoldExpiresAt: handle.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id": b.ID,
		"show_id":    showID,
		"user_id":    userID,
	})
	if err := s.repo.Create(ctx, b); err != nil {
		if relErr := s.holds.Release(ctx, handle); relErr != nil {
			log.WithError(relErr).Warn("release after failed booking insert")
		}
		return model.Booking{}, fmt.Errorf("create booking: %w", err)
	}
	metrics.BookingTransitions.WithLabelValues(string(model.BookingPendingPayment)).Inc()

	// The gateway is called with no seat lock held; only the hold
	// protects the seats meanwhile.
	session, err := s.payments.CreateSession(ctx, b)
	if err != nil {
		s.abandon(ctx, b, ReasonPaymentSessionFailed)
		return model.Booking{}, fmt.Errorf("create payment session: %w", err)
	}
	if err := s.repo.SetPaymentSession(ctx, b.ID, session, s.clock.Now()); err != nil {
		s.abandon(ctx, b, ReasonPaymentSessionFailed)
		return model.Booking{}, fmt.Errorf("store payment session: %w", err)
	}
	b.PaymentSessionRef = session.Ref
	b.PaymentRedirectURL = session.RedirectURL

	valid, err := s.holdValid(ctx, b)
	if err != nil {
		return model.Booking{}, err
	}
	if !valid {
		_, _ = s.expire(ctx, b)
		return model.Booking{}, model.ErrHoldExpired
	}
	log.WithField("seats", b.SeatIDs).Info("booking created")
	return b, nil
}

// CancelBooking cancels a pending booking and gives its seats back.
func (s *Service) CancelBooking(ctx context.Context, bookingID, userID, reason string) (model.Booking, error) {
	b, err := s.owned(ctx, bookingID, userID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.BookingPendingPayment {
		return b, fmt.Errorf("%w: booking is %s", model.ErrInvalidState, b.Status)
	}
	if reason == "" {
		reason = ReasonUserCancelled
	}
	// Released holds cannot be promoted; a promoted one fences the cancel.
	if err := s.holds.Release(ctx, b.HoldHandle()); err != nil {
		if errors.Is(err, model.ErrHoldPromoted) {
			return b, errPaymentCaptured
		}
		return b, fmt.Errorf("release hold: %w", err)
	}
	now := s.clock.Now()
	ok, err := s.repo.Transition(ctx, b.ID, model.BookingTransition{
		From:   model.BookingPendingPayment,
		To:     model.BookingCancelled,
		Reason: reason,
		At:     now,
	})
	if err != nil {
		return b, fmt.Errorf("cancel booking: %w", err)
	}
	if !ok {
		return b, fmt.Errorf("%w: booking changed concurrently", model.ErrInvalidState)
	}
	metrics.BookingTransitions.WithLabelValues(string(model.BookingCancelled)).Inc()
	b.Status = model.BookingCancelled
	b.CancelReason = reason
	b.UpdatedAt = now
	return b, nil
}

// Checkout re-validates the hold right before the client is sent to the
// payment page.
func (s *Service) Checkout(ctx context.Context, bookingID, userID string) (model.Booking, error) {
	b, err := s.owned(ctx, bookingID, userID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.BookingPendingPayment {
		if b.Status == model.BookingExpired {
			return b, model.ErrHoldExpired
		}
		return b, fmt.Errorf("%w: booking is %s", model.ErrInvalidState, b.Status)
	}
	valid, err := s.holdValid(ctx, b)
	if err != nil {
		return b, err
	}
	if !valid {
		if _, err := s.expire(ctx, b); errors.Is(err, model.ErrHoldPromoted) {
			return b, errPaymentCaptured
		}
		return b, model.ErrHoldExpired
	}
	return b, nil
}

// ExtendHold renews the booking's hold by the default TTL.
func (s *Service) ExtendHold(ctx context.Context, bookingID, userID string) (model.Booking, error) {
	b, err := s.owned(ctx, bookingID, userID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.BookingPendingPayment {
		return b, fmt.Errorf("%w: booking is %s", model.ErrInvalidState, b.Status)
	}
	h, err := s.holds.Renew(ctx, b.HoldHandle(), 0)
	if errors.Is(err, model.ErrHoldNotFound) || errors.Is(err, model.ErrHoldExpired) {
		if _, err := s.expire(ctx, b); errors.Is(err, model.ErrHoldPromoted) {
			return b, errPaymentCaptured
		}
		return b, model.ErrHoldExpired
	}
	if err != nil {
		return b, err
	}
	now := s.clock.Now()
	if err := s.repo.UpdateHoldExpiry(ctx, b.ID, h.ExpiresAt, now); err != nil {
		return b, fmt.Errorf("store hold expiry: %w", err)
	}
	b.HoldExpiresAt = h.ExpiresAt
	b.UpdatedAt = now
	return b, nil
}

// GetBooking returns a booking owned by userID.
func (s *Service) GetBooking(ctx context.Context, bookingID, userID string) (model.Booking, error) {
	return s.owned(ctx, bookingID, userID)
}

// ListBookings returns every booking of userID, newest first.
func (s *Service) ListBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ExpireStale marks pending bookings whose hold has lapsed as EXPIRED and
// releases their holds.  Running it twice is harmless.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	var total int
	for {
		stale, err := s.repo.ListStalePending(ctx, s.clock.Now(), staleBatch)
		if err != nil {
			return total, fmt.Errorf("list stale bookings: %w", err)
		}
		n := 0
		for _, b := range stale {
			if ok, _ := s.expire(ctx, b); ok {
				n++
			}
		}
		total += n
		if len(stale) < staleBatch || n == 0 {
			break
		}
	}
	if total > 0 {
		logging.FromContext(ctx).WithField("count", total).Info("stale bookings expired")
	}
	return total, nil
}

func (s *Service) owned(ctx context.Context, bookingID, userID string) (model.Booking, error) {
	b, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.UserID != userID {
		return model.Booking{}, model.ErrForbidden
	}
	return b, nil
}

// holdValid checks that every seat of b is still held by its hold.
func (s *Service) holdValid(ctx context.Context, b model.Booking) (bool, error) {
	snap, err := s.holds.Snapshot(ctx, b.ShowID)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	for _, id := range b.SeatIDs {
		rec, ok := snap.Records[id]
		if !ok || rec.HoldID != b.HoldID || rec.State != model.SeatHeld || rec.Expired(now) {
			return false, nil
		}
	}
	return true, nil
}

// expire releases the hold of a pending booking and moves the booking to
// EXPIRED.  It reports whether this call made the transition.  When the
// hold was already promoted the booking is left to payment confirmation
// and model.ErrHoldPromoted is returned.
func (s *Service) expire(ctx context.Context, b model.Booking) (bool, error) {
	log := logging.FromContext(ctx).WithField("booking_id", b.ID)
	if err := s.holds.Release(ctx, b.HoldHandle()); err != nil {
		if errors.Is(err, model.ErrHoldPromoted) {
			log.Info("hold already sold, leaving booking to payment confirmation")
		} else {
			log.WithError(err).Warn("release hold of expired booking")
		}
		return false, err
	}
	ok, err := s.repo.Transition(ctx, b.ID, model.BookingTransition{
		From:   model.BookingPendingPayment,
		To:     model.BookingExpired,
		Reason: ReasonHoldExpired,
		At:     s.clock.Now(),
	})
	if err != nil {
		log.WithError(err).Error("expire booking")
		return false, err
	}
	if ok {
		metrics.BookingTransitions.WithLabelValues(string(model.BookingExpired)).Inc()
	}
	return ok, nil
}

// abandon cancels a booking whose checkout could not start.  A booking
// whose hold cannot be released stays pending for the sweeper.
func (s *Service) abandon(ctx context.Context, b model.Booking, reason string) {
	log := logging.FromContext(ctx).WithField("booking_id", b.ID)
	if err := s.holds.Release(ctx, b.HoldHandle()); err != nil {
		log.WithError(err).Warn("release hold of abandoned booking")
		return
	}
	if _, err := s.repo.Transition(ctx, b.ID, model.BookingTransition{
		From:   model.BookingPendingPayment,
		To:     model.BookingCancelled,
		Reason: reason,
		At:     s.clock.Now(),
	}); err != nil {
		log.WithError(err).Error("cancel abandoned booking")
	}
}

// SweepHook adapts ExpireStale to the sweeper hook signature.
func (s *Service) SweepHook(ctx context.Context, _ []model.Hold) error {
	_, err := s.ExpireStale(ctx)
	return err
}
