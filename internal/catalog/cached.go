package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/clock"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

// Cached memoises another provider for ttl.  Seat maps are immutable so
// the only thing that can go stale is the show status, which ttl bounds.
type Cached struct {
	next  Provider
	ttl   time.Duration
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]cachedEntry
}

type cachedEntry struct {
	entry
	loadedAt time.Time
}

func NewCached(next Provider, ttl time.Duration, clk clock.Clock) *Cached {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cached{next: next, ttl: ttl, clock: clk, entries: make(map[string]cachedEntry)}
}

func (c *Cached) Show(ctx context.Context, showID string) (model.Show, *seatmap.SeatMap, error) {
	now := c.clock.Now()
	c.mu.Lock()
	e, ok := c.entries[showID]
	c.mu.Unlock()
	if ok && now.Sub(e.loadedAt) < c.ttl {
		return e.show, e.seat, nil
	}

	show, sm, err := c.next.Show(ctx, showID)
	if err != nil {
		return model.Show{}, nil, err
	}
	c.mu.Lock()
	c.entries[showID] = cachedEntry{entry: entry{show: show, seat: sm}, loadedAt: now}
	c.mu.Unlock()
	return show, sm, nil
}

// Invalidate drops a cached show.
func (c *Cached) Invalidate(showID string) {
	c.mu.Lock()
	delete(c.entries, showID)
	c.mu.Unlock()
}
