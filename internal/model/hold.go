package model

import (
	"slices"
	"time"
)

// HoldStatus is the lifecycle state of a hold.  ACTIVE is the only
// non-terminal status.
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldReleased HoldStatus = "RELEASED"
	HoldPromoted HoldStatus = "PROMOTED"
	HoldExpired  HoldStatus = "EXPIRED"
)

// Hold represents a temporary, exclusive claim on a set of seats for one
// show while a checkout is in progress.  All seats of a hold are taken
// and given back together.
//
// Fields:
//
//	ID          – hold identifier.
//	ShowID      – show the seats belong to.
//	SeatIDs     – seats covered by the hold.
//	HolderToken – opaque owner reference (the booking id).
//	ExpiresAt   – instant after which the hold no longer protects its seats.
//	CreatedAt   – when the hold was taken.
//	Status      – ACTIVE, RELEASED, PROMOTED or EXPIRED.
type Hold struct {
	ID          string
	ShowID      string
	SeatIDs     []string
	HolderToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	Status      HoldStatus
}

// ExpiredAt reports whether the hold no longer protects its seats at now.
func (h Hold) ExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// Handle returns the caller-facing reference to the hold.
func (h Hold) Handle() HoldHandle {
	return HoldHandle{
		HoldID:      h.ID,
		ShowID:      h.ShowID,
		SeatIDs:     slices.Clone(h.SeatIDs),
		HolderToken: h.HolderToken,
		ExpiresAt:   h.ExpiresAt,
	}
}

// HoldHandle is what callers keep to renew, release or promote a hold.
type HoldHandle struct {
	HoldID      string
	ShowID      string
	SeatIDs     []string
	HolderToken string
	ExpiresAt   time.Time
}
