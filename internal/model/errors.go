package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSeatUnavailable is returned when at least one requested seat is
	// held or sold.  The concrete error is a *SeatUnavailableError.
	ErrSeatUnavailable = errors.New("seat unavailable")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrHoldExpired     = errors.New("hold expired")
	// ErrHoldPromoted is returned by Release when the hold was already
	// sold; its seats stay Sold.
	ErrHoldPromoted = errors.New("hold already promoted")
	// ErrPaymentReconciliationConflict signals a payment that cannot be
	// matched to sellable seats.  It always comes with an audit record.
	ErrPaymentReconciliationConflict = errors.New("payment reconciliation conflict")
	ErrInvalidState                  = errors.New("invalid booking state")
	ErrBookingNotFound               = errors.New("booking not found")
	ErrShowNotFound                  = errors.New("show not found")
	ErrShowNotBookable               = errors.New("show not bookable")
	ErrUnknownSeat                   = errors.New("unknown seat")
	ErrNoSeats                       = errors.New("no seats requested")
	ErrTooManySeats                  = errors.New("too many seats requested")
	// ErrForbidden is returned when the caller acts on a booking owned by
	// someone else.
	ErrForbidden = errors.New("forbidden")
)

// SeatUnavailableError lists the seats that blocked an all-or-nothing
// hold.  It matches ErrSeatUnavailable with errors.Is.
type SeatUnavailableError struct {
	ShowID  string
	SeatIDs []string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seat unavailable: show %s: %s", e.ShowID, strings.Join(e.SeatIDs, ","))
}

func (e *SeatUnavailableError) Is(target error) bool { return target == ErrSeatUnavailable }

// UnknownSeatError lists seat ids that do not exist in the show's seat
// map.  It matches ErrUnknownSeat with errors.Is.
type UnknownSeatError struct {
	SeatIDs []string
}

func (e *UnknownSeatError) Error() string {
	return "unknown seat: " + strings.Join(e.SeatIDs, ",")
}

func (e *UnknownSeatError) Is(target error) bool { return target == ErrUnknownSeat }
