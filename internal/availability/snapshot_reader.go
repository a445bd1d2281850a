package availability

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

// SeatMapSource resolves the seat map of a show.
type SeatMapSource interface {
	Show(ctx context.Context, showID string) (model.Show, *seatmap.SeatMap, error)
}

// Availability is the read model served to clients polling a show.
type Availability struct {
	ShowID   string
	Occupied []string
	Locked   []string
	Free     []string
	AsOf     time.Time
}

// SnapshotReader merges the static seat map with the live seat state.
// It never takes a write lock, so results may lag a concurrent hold by one
// publish but never report a held or sold seat as free.
type SnapshotReader struct {
	seats   SeatMapSource
	manager *LockManager
}

func NewSnapshotReader(seats SeatMapSource, manager *LockManager) *SnapshotReader {
	return &SnapshotReader{seats: seats, manager: manager}
}

// Read returns occupied (sold), locked (held) and free seats in seat map
// order.  Holds past their expiry are reported free.
func (r *SnapshotReader) Read(ctx context.Context, showID string) (Availability, error) {
	_, sm, err := r.seats.Show(ctx, showID)
	if err != nil {
		return Availability{}, err
	}
	snap, err := r.manager.Snapshot(ctx, showID)
	if err != nil {
		return Availability{}, err
	}
	now := r.manager.Now()
	out := Availability{
		ShowID:   showID,
		Occupied: []string{},
		Locked:   []string{},
		Free:     []string{},
		AsOf:     now,
	}
	for _, id := range sm.SeatIDs() {
		switch snap.State(id, now) {
		case model.SeatSold:
			out.Occupied = append(out.Occupied, id)
		case model.SeatHeld:
			out.Locked = append(out.Locked, id)
		default:
			out.Free = append(out.Free, id)
		}
	}
	return out, nil
}
