package seatmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// RowLabel converts a zero-based row index into a spreadsheet-style
// label: 0 -> A, 25 -> Z, 26 -> AA.
func RowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []rune
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	return string(lo.Reverse(res))
}

// GridLayout generates a rectangular layout with rows labelled A, B, ...
// and seats numbered from 1 within each row.  Columns listed in aisles
// (zero-based) stay empty and do not consume a seat number.
func GridLayout(screenID string, rows, cols int, tierOf func(row int) string, aisles ...int) Layout {
	layout := Layout{ScreenID: screenID, Columns: cols, Rows: make([][]Cell, rows)}
	for r := 0; r < rows; r++ {
		label := RowLabel(r)
		tier := tierOf(r)
		cells := make([]Cell, cols)
		n := 0
		for c := 0; c < cols; c++ {
			if lo.Contains(aisles, c) {
				continue
			}
			n++
			cells[c] = Cell{SeatID: label + strconv.Itoa(n), Tier: tier}
		}
		layout.Rows[r] = cells
	}
	return layout
}

// ParseRow reads a row written as whitespace separated cells where each
// cell is either "." (aisle) or "SEAT:TIER", e.g. "A1:STD A2:STD . A3:VIP".
func ParseRow(s string) ([]Cell, error) {
	fields := strings.Fields(s)
	cells := make([]Cell, 0, len(fields))
	for _, f := range fields {
		if f == "." {
			cells = append(cells, Cell{})
			continue
		}
		seat, tier, ok := strings.Cut(f, ":")
		if !ok || seat == "" || tier == "" {
			return nil, fmt.Errorf("seatmap: malformed cell %q", f)
		}
		cells = append(cells, Cell{SeatID: seat, Tier: tier})
	}
	return cells, nil
}

// ParseLayout applies ParseRow to every row.
func ParseLayout(screenID string, rows []string) (Layout, error) {
	layout := Layout{ScreenID: screenID, Rows: make([][]Cell, 0, len(rows))}
	for i, row := range rows {
		cells, err := ParseRow(row)
		if err != nil {
			return Layout{}, fmt.Errorf("row %d: %w", i, err)
		}
		layout.Rows = append(layout.Rows, cells)
	}
	return layout, nil
}
