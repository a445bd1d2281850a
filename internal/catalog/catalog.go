// Package catalog resolves the read-only reference data of a show: the
// show itself and its seat map with prices.
package catalog

import (
	"context"
	"sync"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

// Provider returns a show and its seat map, or model.ErrShowNotFound.
type Provider interface {
	Show(ctx context.Context, showID string) (model.Show, *seatmap.SeatMap, error)
}

type entry struct {
	show model.Show
	seat *seatmap.SeatMap
}

// Static is an in-memory provider.  It backs the memory deployment and
// tests.
type Static struct {
	mu    sync.RWMutex
	shows map[string]entry
}

func NewStatic() *Static {
	return &Static{shows: make(map[string]entry)}
}

// Add registers or replaces a show.
func (s *Static) Add(show model.Show, sm *seatmap.SeatMap) {
	s.mu.Lock()
	s.shows[show.ID] = entry{show: show, seat: sm}
	s.mu.Unlock()
}

func (s *Static) Show(_ context.Context, showID string) (model.Show, *seatmap.SeatMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.shows[showID]
	if !ok {
		return model.Show{}, nil, model.ErrShowNotFound
	}
	return e.show, e.seat, nil
}
