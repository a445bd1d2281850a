package model

import "time"

// BookingStatus is the state of a booking in the payment state machine.
type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCancelled      BookingStatus = "CANCELLED"
	BookingExpired        BookingStatus = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPendingPayment, BookingConfirmed, BookingCancelled, BookingExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingCancelled || s == BookingExpired
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != BookingPendingPayment {
		return false
	}
	return next == BookingConfirmed || next == BookingCancelled || next == BookingExpired
}

// Booking records a user's purchase attempt for a set of seats of one
// show.  The hold protecting the seats is owned by the booking: its
// holder token is the booking id.
//
// Fields:
//
//	ID                 – booking identifier (UUID).
//	ShowID             – show being booked.
//	UserID             – user who made the booking.
//	SeatIDs            – seats covered by the booking.
//	AmountCents        – sum of the resolved seat prices.
//	Status             – PENDING_PAYMENT, CONFIRMED, CANCELLED or EXPIRED.
//	HoldID             – hold protecting the seats.
//	HoldExpiresAt      – expiry of that hold as last granted.
//	PaymentSessionRef  – reference of the payment session, if created.
//	PaymentRedirectURL – where the client completes the payment.
//	PaymentRef         – gateway reference of the successful payment.
//	CancelReason       – why the booking was cancelled or expired.
//	CreatedAt          – creation timestamp.
//	UpdatedAt          – last update timestamp.
type Booking struct {
	ID                 string        `db:"id"`
	ShowID             string        `db:"show_id"`
	UserID             string        `db:"user_id"`
	SeatIDs            []string      `db:"-"`
	AmountCents        int64         `db:"amount_cents"`
	Status             BookingStatus `db:"status"`
	HoldID             string        `db:"hold_id"`
	HoldExpiresAt      time.Time     `db:"hold_expires_at"`
	PaymentSessionRef  string        `db:"payment_session_ref"`
	PaymentRedirectURL string        `db:"payment_redirect_url"`
	PaymentRef         string        `db:"payment_ref"`
	CancelReason       string        `db:"cancel_reason"`
	CreatedAt          time.Time     `db:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at"`
}

// HoldHandle rebuilds the handle of the hold owned by the booking.
func (b Booking) HoldHandle() HoldHandle {
	return HoldHandle{
		HoldID:      b.HoldID,
		ShowID:      b.ShowID,
		SeatIDs:     b.SeatIDs,
		HolderToken: b.ID,
		ExpiresAt:   b.HoldExpiresAt,
	}
}

// BookingTransition describes a compare-and-set status change.  The
// repository applies it only when the stored status still equals From.
type BookingTransition struct {
	From       BookingStatus
	To         BookingStatus
	PaymentRef string
	Reason     string
	At         time.Time
}

// PaymentSession is what the payment gateway returns for a booking.
type PaymentSession struct {
	Ref         string
	RedirectURL string
}

// ReconciliationConflict is an audit record for a payment that arrived
// for a booking whose seats could not be confirmed.  It is unique per
// (BookingID, PaymentRef) and is never retried automatically.
type ReconciliationConflict struct {
	ID            string        `db:"id"`
	BookingID     string        `db:"booking_id"`
	ShowID        string        `db:"show_id"`
	UserID        string        `db:"user_id"`
	SeatIDs       []string      `db:"-"`
	PaymentRef    string        `db:"payment_ref"`
	AmountCents   int64         `db:"amount_cents"`
	BookingStatus BookingStatus `db:"booking_status"`
	Reason        string        `db:"reason"`
	DetectedAt    time.Time     `db:"detected_at"`
}
