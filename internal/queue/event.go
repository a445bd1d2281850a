// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const (
	BookingConfirmedQueue = "booking.confirmed"
	ReconciliationQueue   = "booking.reconciliation"
)

// BookingConfirmedEvent is published when a booking is successfully confirmed.
// It contains enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID   string   `json:"booking_id"`
	UserID      string   `json:"user_id"`
	ShowID      string   `json:"show_id"`
	SeatIDs     []string `json:"seats"`
	AmountCents int64    `json:"amount_cents"`
	PaymentRef  string   `json:"payment_ref"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// ReconciliationConflictEvent escalates a payment that could not be
// matched to sold seats.  Operators refund or re-seat manually.
type ReconciliationConflictEvent struct {
	ConflictID    string   `json:"conflict_id"`
	BookingID     string   `json:"booking_id"`
	UserID        string   `json:"user_id"`
	ShowID        string   `json:"show_id"`
	SeatIDs       []string `json:"seats"`
	PaymentRef    string   `json:"payment_ref"`
	AmountCents   int64    `json:"amount_cents"`
	BookingStatus string   `json:"booking_status"`
	Reason        string   `json:"reason"`
	DetectedAt    string   `json:"detected_at"`
}

func NewBookingConfirmedEvent(b model.Booking) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		BookingID:   b.ID,
		UserID:      b.UserID,
		ShowID:      b.ShowID,
		SeatIDs:     b.SeatIDs,
		AmountCents: b.AmountCents,
		PaymentRef:  b.PaymentRef,
		ConfirmedAt: b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewReconciliationConflictEvent(c model.ReconciliationConflict) ReconciliationConflictEvent {
	return ReconciliationConflictEvent{
		ConflictID:    c.ID,
		BookingID:     c.BookingID,
		UserID:        c.UserID,
		ShowID:        c.ShowID,
		SeatIDs:       c.SeatIDs,
		PaymentRef:    c.PaymentRef,
		AmountCents:   c.AmountCents,
		BookingStatus: string(c.BookingStatus),
		Reason:        c.Reason,
		DetectedAt:    c.DetectedAt.UTC().Format(time.RFC3339),
	}
}
