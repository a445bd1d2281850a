package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking-core/internal/catalog"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/seatmap"
)

// CatalogRepo stores halls, tiers and shows and rebuilds seat maps from
// them.  It implements catalog.Provider.
type CatalogRepo struct {
	db *sqlx.DB
}

func NewCatalogRepo(db *sqlx.DB) *CatalogRepo { return &CatalogRepo{db: db} }

type hallRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	SeatRows int    `db:"seat_rows"`
	SeatCols int    `db:"seat_cols"`
}

type seatRow struct {
	SeatID   string `db:"seat_id"`
	GridRow  int    `db:"grid_row"`
	GridCol  int    `db:"grid_col"`
	TierCode string `db:"tier_code"`
}

type tierRow struct {
	Code        string `db:"code"`
	DisplayName string `db:"display_name"`
	PriceCents  int64  `db:"price_cents"`
}

type showRow struct {
	ID       string    `db:"id"`
	HallID   string    `db:"hall_id"`
	Title    string    `db:"title"`
	StartsAt time.Time `db:"starts_at"`
	Status   string    `db:"status"`
}

// Show loads the show and rebuilds its seat map.
func (r *CatalogRepo) Show(ctx context.Context, showID string) (model.Show, *seatmap.SeatMap, error) {
	var s showRow
	err := r.db.GetContext(ctx, &s, `SELECT id, hall_id, title, starts_at, status FROM shows WHERE id = ?`, showID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Show{}, nil, model.ErrShowNotFound
	}
	if err != nil {
		return model.Show{}, nil, err
	}

	var hall hallRow
	if err := r.db.GetContext(ctx, &hall, `SELECT id, name, seat_rows, seat_cols FROM halls WHERE id = ?`, s.HallID); err != nil {
		return model.Show{}, nil, fmt.Errorf("hall %s of show %s: %w", s.HallID, showID, err)
	}
	var seats []seatRow
	if err := r.db.SelectContext(ctx, &seats,
		`SELECT seat_id, grid_row, grid_col, tier_code FROM seats WHERE hall_id = ?`, hall.ID); err != nil {
		return model.Show{}, nil, err
	}
	var tiers []tierRow
	if err := r.db.SelectContext(ctx, &tiers,
		`SELECT code, display_name, price_cents FROM seat_tiers WHERE hall_id = ?`, hall.ID); err != nil {
		return model.Show{}, nil, err
	}
	var prices []tierRow
	if err := r.db.SelectContext(ctx, &prices,
		`SELECT code, '' AS display_name, price_cents FROM show_tier_prices WHERE show_id = ?`, showID); err != nil {
		return model.Show{}, nil, err
	}

	layout := seatmap.Layout{ScreenID: hall.ID, Columns: hall.SeatCols, Rows: make([][]seatmap.Cell, hall.SeatRows)}
	for i := range layout.Rows {
		layout.Rows[i] = make([]seatmap.Cell, hall.SeatCols)
	}
	for _, st := range seats {
		if st.GridRow >= hall.SeatRows || st.GridCol >= hall.SeatCols {
			return model.Show{}, nil, fmt.Errorf("seat %s outside hall %s grid", st.SeatID, hall.ID)
		}
		layout.Rows[st.GridRow][st.GridCol] = seatmap.Cell{SeatID: st.SeatID, Tier: st.TierCode}
	}
	tierList := make([]seatmap.Tier, 0, len(tiers))
	for _, t := range tiers {
		tierList = append(tierList, seatmap.Tier{Code: t.Code, DisplayName: t.DisplayName, PriceCents: t.PriceCents})
	}
	overrides := make(map[string]int64, len(prices))
	for _, p := range prices {
		overrides[p.Code] = p.PriceCents
	}

	sm, err := seatmap.Build(showID, layout, tierList, overrides)
	if err != nil {
		return model.Show{}, nil, fmt.Errorf("show %s: %w", showID, err)
	}
	return model.Show{
		ID:       s.ID,
		ScreenID: s.HallID,
		Title:    s.Title,
		StartsAt: s.StartsAt.UTC(),
		Status:   model.ShowStatus(s.Status),
	}, sm, nil
}

// Save writes a catalog definition: the hall layout and tiers are
// replaced, the show and its price overrides upserted.
func (r *CatalogRepo) Save(ctx context.Context, d catalog.Definition) error {
	if _, err := d.Build(); err != nil {
		return err
	}
	cols := d.Layout.Columns
	for _, row := range d.Layout.Rows {
		cols = max(cols, len(row))
	}
	hallID := d.Layout.ScreenID
	if hallID == "" {
		hallID = d.Show.ScreenID
	}

	return withRetry(ctx, txAttempts, func() error {
		return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO halls (id, name, seat_rows, seat_cols) VALUES (?, ?, ?, ?)
				 ON DUPLICATE KEY UPDATE seat_rows = VALUES(seat_rows), seat_cols = VALUES(seat_cols)`,
				hallID, hallID, len(d.Layout.Rows), cols); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM seats WHERE hall_id = ?`, hallID); err != nil {
				return err
			}
			for ri, row := range d.Layout.Rows {
				for ci, cell := range row {
					if cell.Aisle() {
						continue
					}
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO seats (hall_id, seat_id, grid_row, grid_col, tier_code) VALUES (?, ?, ?, ?, ?)`,
						hallID, cell.SeatID, ri, ci, cell.Tier); err != nil {
						return err
					}
				}
			}
			for _, t := range d.Tiers {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO seat_tiers (hall_id, code, display_name, price_cents) VALUES (?, ?, ?, ?)
					 ON DUPLICATE KEY UPDATE display_name = VALUES(display_name), price_cents = VALUES(price_cents)`,
					hallID, t.Code, t.DisplayName, t.PriceCents); err != nil {
					return err
				}
			}
			status := d.Show.Status
			if status == "" {
				status = model.ShowScheduled
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO shows (id, hall_id, title, starts_at, status) VALUES (?, ?, ?, ?, ?)
				 ON DUPLICATE KEY UPDATE hall_id = VALUES(hall_id), title = VALUES(title),
				 starts_at = VALUES(starts_at), status = VALUES(status)`,
				d.Show.ID, hallID, d.Show.Title, dbTime(d.Show.StartsAt), string(status)); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM show_tier_prices WHERE show_id = ?`, d.Show.ID); err != nil {
				return err
			}
			for code, price := range d.Overrides {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO show_tier_prices (show_id, code, price_cents) VALUES (?, ?, ?)`,
					d.Show.ID, code, price); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// SetShowStatus changes the lifecycle status of a show.
func (r *CatalogRepo) SetShowStatus(ctx context.Context, showID string, status model.ShowStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE shows SET status = ? WHERE id = ?`, string(status), showID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrShowNotFound
	}
	return nil
}
