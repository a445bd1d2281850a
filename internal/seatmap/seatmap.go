// Package seatmap builds the immutable seat grid of a show and resolves
// seat prices from tiers.  A SeatMap is created once per show and never
// mutated afterwards, so it can be shared between goroutines freely.
package seatmap

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

var (
	ErrEmptyLayout    = errors.New("seatmap: layout has no seats")
	ErrDuplicateSeat  = errors.New("seatmap: duplicate seat id")
	ErrRaggedRow      = errors.New("seatmap: row wider than declared columns")
	ErrUnresolvedTier = errors.New("seatmap: tier has no price")
	ErrInvalidSeatID  = errors.New("seatmap: invalid seat id")
	ErrNegativePrice  = errors.New("seatmap: negative price")
	seatIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
)

// Cell is one position of the grid.  An empty SeatID marks an aisle.
type Cell struct {
	SeatID string
	Tier   string
}

// Aisle reports whether the cell holds no seat.
func (c Cell) Aisle() bool { return c.SeatID == "" }

// Layout is the physical arrangement of a screen.  Rows shorter than
// Columns are padded with aisles; Columns of zero means "widest row".
type Layout struct {
	ScreenID string
	Columns  int
	Rows     [][]Cell
}

// Tier is a seat category with its screen default price.
type Tier struct {
	Code        string
	DisplayName string
	PriceCents  int64
}

// Seat is a resolved seat: its grid position, tier and price for the show.
type Seat struct {
	ID         string
	Tier       string
	Row        int
	Col        int
	PriceCents int64
}

// SeatMap is the read-only seat grid of one show with prices resolved.
type SeatMap struct {
	showID  string
	columns int
	rows    [][]Cell
	tiers   map[string]Tier
	seats   map[string]Seat
	order   []string
}

// Build validates layout and resolves the price of every seat.  overrides
// maps tier codes to a show-specific price replacing the tier default.
func Build(showID string, layout Layout, tiers []Tier, overrides map[string]int64) (*SeatMap, error) {
	resolved := make(map[string]Tier, len(tiers)+len(overrides))
	for _, t := range tiers {
		if t.PriceCents < 0 {
			return nil, fmt.Errorf("%w: tier %s", ErrNegativePrice, t.Code)
		}
		if t.DisplayName == "" {
			t.DisplayName = t.Code
		}
		resolved[t.Code] = t
	}
	for code, price := range overrides {
		if price < 0 {
			return nil, fmt.Errorf("%w: override %s", ErrNegativePrice, code)
		}
		t, ok := resolved[code]
		if !ok {
			t = Tier{Code: code, DisplayName: code}
		}
		t.PriceCents = price
		resolved[code] = t
	}

	cols := layout.Columns
	if cols <= 0 {
		for _, row := range layout.Rows {
			cols = max(cols, len(row))
		}
	}

	m := &SeatMap{
		showID:  showID,
		columns: cols,
		rows:    make([][]Cell, len(layout.Rows)),
		tiers:   make(map[string]Tier),
		seats:   make(map[string]Seat),
	}
	for r, row := range layout.Rows {
		if len(row) > cols {
			return nil, fmt.Errorf("%w: row %d has %d cells, %d declared", ErrRaggedRow, r, len(row), cols)
		}
		cells := make([]Cell, cols)
		copy(cells, row)
		for c, cell := range cells {
			if cell.Aisle() {
				continue
			}
			if !seatIDPattern.MatchString(cell.SeatID) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidSeatID, cell.SeatID)
			}
			if _, dup := m.seats[cell.SeatID]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateSeat, cell.SeatID)
			}
			tier, ok := resolved[cell.Tier]
			if !ok {
				return nil, fmt.Errorf("%w: seat %s tier %q", ErrUnresolvedTier, cell.SeatID, cell.Tier)
			}
			m.tiers[tier.Code] = tier
			m.seats[cell.SeatID] = Seat{ID: cell.SeatID, Tier: tier.Code, Row: r, Col: c, PriceCents: tier.PriceCents}
			m.order = append(m.order, cell.SeatID)
		}
		m.rows[r] = cells
	}
	if len(m.order) == 0 {
		return nil, ErrEmptyLayout
	}
	return m, nil
}

func (m *SeatMap) ShowID() string { return m.showID }

func (m *SeatMap) Columns() int { return m.columns }

// Len is the number of seats.
func (m *SeatMap) Len() int { return len(m.order) }

// Seat looks up a seat by id.
func (m *SeatMap) Seat(id string) (Seat, bool) {
	s, ok := m.seats[id]
	return s, ok
}

// SeatIDs returns every seat id in grid order.
func (m *SeatMap) SeatIDs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Rows returns a copy of the grid.
func (m *SeatMap) Rows() [][]Cell {
	out := make([][]Cell, len(m.rows))
	for i, row := range m.rows {
		out[i] = append([]Cell(nil), row...)
	}
	return out
}

// Tiers returns the tiers used by at least one seat, sorted by code.
func (m *SeatMap) Tiers() []Tier {
	out := make([]Tier, 0, len(m.tiers))
	for _, t := range m.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Price returns the resolved price of a seat.
func (m *SeatMap) Price(seatID string) (int64, bool) {
	s, ok := m.seats[seatID]
	return s.PriceCents, ok
}

// Quote resolves every requested seat and sums their prices.  Unknown
// seats are reported together as a *model.UnknownSeatError.
func (m *SeatMap) Quote(seatIDs []string) (int64, []Seat, error) {
	var (
		total   int64
		lines   = make([]Seat, 0, len(seatIDs))
		unknown []string
	)
	for _, id := range seatIDs {
		s, ok := m.seats[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		total += s.PriceCents
		lines = append(lines, s)
	}
	if len(unknown) > 0 {
		return 0, nil, &model.UnknownSeatError{SeatIDs: unknown}
	}
	return total, lines, nil
}
