package model

import (
	"fmt"
	"sort"
	"time"
)

// SeatState is the availability of one seat for one show.
type SeatState uint8

const (
	SeatFree SeatState = iota
	SeatHeld
	SeatSold
)

func (s SeatState) String() string {
	switch s {
	case SeatFree:
		return "FREE"
	case SeatHeld:
		return "HELD"
	case SeatSold:
		return "SOLD"
	default:
		return fmt.Sprintf("SeatState(%d)", uint8(s))
	}
}

// MarshalText renders the state by name so JSON payloads stay readable.
func (s SeatState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSeatState is the inverse of String.
func ParseSeatState(v string) (SeatState, error) {
	switch v {
	case "FREE":
		return SeatFree, nil
	case "HELD":
		return SeatHeld, nil
	case "SOLD":
		return SeatSold, nil
	}
	return SeatFree, fmt.Errorf("unknown seat state %q", v)
}

// AvailabilityRecord is the state of a single seat for a show.  Held
// records carry the hold that owns the seat and its expiry; sold records
// keep the id of the hold that was promoted.
type AvailabilityRecord struct {
	SeatID      string
	State       SeatState
	HoldID      string
	HolderToken string
	ExpiresAt   time.Time
}

// Expired reports whether a held record has outlived its hold.
func (r AvailabilityRecord) Expired(now time.Time) bool {
	return r.State == SeatHeld && !now.Before(r.ExpiresAt)
}

// Snapshot is an immutable view of every non-free seat of a show.  A seat
// absent from Records is Free.  Records must not be modified by readers.
type Snapshot struct {
	ShowID  string
	Records map[string]AvailabilityRecord
	TakenAt time.Time
}

// State returns the effective state of seatID at now.  A held seat whose
// hold has expired is reported Free even before the sweeper reclaims it,
// matching what TryHold would do with it.
func (s Snapshot) State(seatID string, now time.Time) SeatState {
	rec, ok := s.Records[seatID]
	if !ok || rec.Expired(now) {
		return SeatFree
	}
	return rec.State
}

// Held returns the sorted ids of seats under a live hold at now.
func (s Snapshot) Held(now time.Time) []string {
	out := make([]string, 0, len(s.Records))
	for id, rec := range s.Records {
		if rec.State == SeatHeld && !rec.Expired(now) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Sold returns the sorted ids of sold seats.
func (s Snapshot) Sold() []string {
	out := make([]string, 0, len(s.Records))
	for id, rec := range s.Records {
		if rec.State == SeatSold {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
