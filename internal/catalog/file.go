package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

// fileShow is the on-disk form of one show.  Rows use the seatmap.ParseRow
// notation.
type fileShow struct {
	ID             string           `json:"id"`
	ScreenID       string           `json:"screen_id"`
	Title          string           `json:"title"`
	StartsAt       time.Time        `json:"starts_at"`
	Status         string           `json:"status"`
	Rows           []string         `json:"rows"`
	Tiers          []fileTier       `json:"tiers"`
	PriceOverrides map[string]int64 `json:"price_overrides"`
}

type fileTier struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// Definition is one show of a catalog file with its seat map inputs.
type Definition struct {
	Show      model.Show
	Layout    seatmap.Layout
	Tiers     []seatmap.Tier
	Overrides map[string]int64
}

// Build resolves the seat map of d.
func (d Definition) Build() (*seatmap.SeatMap, error) {
	return seatmap.Build(d.Show.ID, d.Layout, d.Tiers, d.Overrides)
}

// ReadFile parses a JSON catalog of the form {"shows": [...]}.  Every seat
// map is validated up front.
func ReadFile(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc struct {
		Shows []fileShow `json:"shows"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	defs := make([]Definition, 0, len(doc.Shows))
	for _, fs := range doc.Shows {
		layout, err := seatmap.ParseLayout(fs.ScreenID, fs.Rows)
		if err != nil {
			return nil, fmt.Errorf("show %s: %w", fs.ID, err)
		}
		tiers := make([]seatmap.Tier, 0, len(fs.Tiers))
		for _, t := range fs.Tiers {
			tiers = append(tiers, seatmap.Tier{Code: t.Code, DisplayName: t.Name, PriceCents: t.PriceCents})
		}
		status := model.ShowStatus(fs.Status)
		if status == "" {
			status = model.ShowScheduled
		}
		d := Definition{
			Show: model.Show{
				ID:       fs.ID,
				ScreenID: fs.ScreenID,
				Title:    fs.Title,
				StartsAt: fs.StartsAt.UTC(),
				Status:   status,
			},
			Layout:    layout,
			Tiers:     tiers,
			Overrides: fs.PriceOverrides,
		}
		if _, err := d.Build(); err != nil {
			return nil, fmt.Errorf("show %s: %w", fs.ID, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// LoadFile reads a catalog file into a Static provider.
func LoadFile(path string) (*Static, error) {
	defs, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	static := NewStatic()
	for _, d := range defs {
		sm, err := d.Build()
		if err != nil {
			return nil, fmt.Errorf("show %s: %w", d.Show.ID, err)
		}
		static.Add(d.Show, sm)
	}
	return static, nil
}
