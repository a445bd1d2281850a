// Package availability owns per-show seat state.  The Store is the single
// source of truth for whether a seat is free, held or sold; the
// LockManager is the only component that mutates it.
package availability

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// HoldRequest is a fully resolved all-or-nothing hold attempt.  SeatIDs
// are distinct and non-empty; ExpiresAt is already clamped.
type HoldRequest struct {
	HoldID      string
	ShowID      string
	SeatIDs     []string
	HolderToken string
	ExpiresAt   time.Time
	Now         time.Time
}

// Store is an atomic seat state backend.  Every method is a single
// critical section for the show involved: implementations serialise
// conflicting writers on the same show and never expose a partial hold.
//
// A held seat whose hold has ExpiresAt <= now counts as free: TryHold
// expires that hold (all of its seats) before taking the new one.
type Store interface {
	// TryHold takes every seat or none.  When a seat is held or sold the
	// error is a *model.SeatUnavailableError.
	TryHold(ctx context.Context, req HoldRequest) (model.Hold, error)
	// Renew moves the expiry of an active, unexpired hold.  Otherwise
	// model.ErrHoldNotFound.
	Renew(ctx context.Context, h model.HoldHandle, expiresAt, now time.Time) (model.Hold, error)
	// Release frees the seats of an active hold.  A promoted hold is left
	// untouched and model.ErrHoldPromoted is returned; any other hold,
	// including unknown ones, is left untouched and nil is returned.
	Release(ctx context.Context, h model.HoldHandle, now time.Time) error
	// Promote turns an active, unexpired hold into sold seats.  Promoting
	// an already promoted hold returns nil.
	Promote(ctx context.Context, h model.HoldHandle, now time.Time) error
	// Snapshot returns the non-free seats of a show without blocking
	// writers.
	Snapshot(ctx context.Context, showID string) (model.Snapshot, error)
	// ExpireDue expires at most limit active holds with ExpiresAt <= now
	// and returns them.
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)
}
