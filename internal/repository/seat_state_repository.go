package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking-core/internal/availability"
	"github.com/iliyamo/cinema-booking-core/internal/model"
)

const (
	seatFree = "FREE"
	seatHeld = "HELD"
	seatSold = "SOLD"

	txAttempts       = 5
	defaultRetention = 24 * time.Hour
)

// SeatStateRepo is the MySQL availability.Store.  Each show seat is a row
// in show_seat_states; a hold locks its rows with SELECT ... FOR UPDATE in
// a single transaction, so two overlapping holds can never both commit.
// Seats without a row are free.
type SeatStateRepo struct {
	db        *sqlx.DB
	retention time.Duration
}

var _ availability.Store = (*SeatStateRepo)(nil)

// NewSeatStateRepo returns a store bound to db.
func NewSeatStateRepo(db *sqlx.DB) *SeatStateRepo {
	return &SeatStateRepo{db: db, retention: defaultRetention}
}

type seatStateRow struct {
	SeatID    string         `db:"seat_id"`
	Status    string         `db:"status"`
	HoldID    sql.NullString `db:"hold_id"`
	ExpiresAt sql.NullTime   `db:"expires_at"`
}

type holdRow struct {
	ID          string    `db:"id"`
	ShowID      string    `db:"show_id"`
	HolderToken string    `db:"holder_token"`
	SeatIDs     string    `db:"seat_ids"`
	Status      string    `db:"status"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (h holdRow) toModel() model.Hold {
	return model.Hold{
		ID:          h.ID,
		ShowID:      h.ShowID,
		SeatIDs:     splitIDs(h.SeatIDs),
		HolderToken: h.HolderToken,
		ExpiresAt:   h.ExpiresAt.UTC(),
		CreatedAt:   h.CreatedAt.UTC(),
		Status:      model.HoldStatus(h.Status),
	}
}

const holdColumns = `id, show_id, holder_token, seat_ids, status, expires_at, created_at`

// ensureSeats creates FREE rows for seats seen for the first time so the
// hold transaction always locks existing rows instead of gaps.  Rows are
// inserted in seat order so concurrent callers cannot deadlock each other.
func (r *SeatStateRepo) ensureSeats(ctx context.Context, showID string, seatIDs []string, now time.Time) error {
	seatIDs = slices.Sorted(slices.Values(seatIDs))
	const q = `INSERT IGNORE INTO show_seat_states (show_id, seat_id, status, updated_at) VALUES `
	args := make([]interface{}, 0, len(seatIDs)*3)
	values := make([]byte, 0, len(seatIDs)*14)
	for i, id := range seatIDs {
		if i > 0 {
			values = append(values, ',')
		}
		values = append(values, "(?, ?, 'FREE', ?)"...)
		args = append(args, showID, id, dbTime(now))
	}
	_, err := r.db.ExecContext(ctx, q+string(values), args...)
	return err
}

func (r *SeatStateRepo) TryHold(ctx context.Context, req availability.HoldRequest) (model.Hold, error) {
	err := withRetry(ctx, txAttempts, func() error {
		return r.ensureSeats(ctx, req.ShowID, req.SeatIDs, req.Now)
	})
	if err != nil {
		return model.Hold{}, fmt.Errorf("ensure seat rows: %w", err)
	}
	hold := model.Hold{
		ID:          req.HoldID,
		ShowID:      req.ShowID,
		SeatIDs:     append([]string(nil), req.SeatIDs...),
		HolderToken: req.HolderToken,
		ExpiresAt:   dbTime(req.ExpiresAt),
		CreatedAt:   dbTime(req.Now),
		Status:      model.HoldActive,
	}
	err = withRetry(ctx, txAttempts, func() error {
		return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
			query, args, err := sqlx.In(
				`SELECT seat_id, status, hold_id, expires_at FROM show_seat_states
				 WHERE show_id = ? AND seat_id IN (?) ORDER BY seat_id FOR UPDATE`,
				req.ShowID, req.SeatIDs)
			if err != nil {
				return err
			}
			var rows []seatStateRow
			if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
				return err
			}

			var busy []string
			stale := make(map[string]struct{})
			for _, row := range rows {
				switch {
				case row.Status == seatFree:
				case row.Status == seatHeld && row.ExpiresAt.Valid && !req.Now.Before(row.ExpiresAt.Time):
					stale[row.HoldID.String] = struct{}{}
				default:
					busy = append(busy, row.SeatID)
				}
			}
			if len(busy) > 0 {
				return &model.SeatUnavailableError{ShowID: req.ShowID, SeatIDs: busy}
			}
			for holdID := range stale {
				h, found, err := lockHold(ctx, tx, holdID)
				if err != nil {
					return err
				}
				if found && h.Status == string(model.HoldActive) {
					if err := finishHold(ctx, tx, holdID, model.HoldExpired, req.Now); err != nil {
						return err
					}
				}
			}

			query, args, err = sqlx.In(
				`UPDATE show_seat_states SET status = 'HELD', hold_id = ?, expires_at = ?, updated_at = ?
				 WHERE show_id = ? AND seat_id IN (?)`,
				hold.ID, hold.ExpiresAt, dbTime(req.Now), req.ShowID, req.SeatIDs)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO seat_holds (id, show_id, holder_token, seat_ids, status, expires_at, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				hold.ID, hold.ShowID, hold.HolderToken, joinIDs(hold.SeatIDs), string(model.HoldActive),
				hold.ExpiresAt, hold.CreatedAt, hold.CreatedAt)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, model.ErrSeatUnavailable) {
			return model.Hold{}, err
		}
		return model.Hold{}, fmt.Errorf("mysql try hold: %w", err)
	}
	return hold, nil
}

func (r *SeatStateRepo) Renew(ctx context.Context, h model.HoldHandle, expiresAt, now time.Time) (model.Hold, error) {
	var (
		out   model.Hold
		found bool
	)
	err := withRetry(ctx, txAttempts, func() error {
		found = false
		return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
			row, ok, err := lockHold(ctx, tx, h.HoldID)
			if err != nil || !ok || row.HolderToken != h.HolderToken || row.Status != string(model.HoldActive) {
				return err
			}
			if !now.Before(row.ExpiresAt) {
				return finishHold(ctx, tx, row.ID, model.HoldExpired, now)
			}
			exp := dbTime(expiresAt)
			if _, err := tx.ExecContext(ctx,
				`UPDATE seat_holds SET expires_at = ?, updated_at = ? WHERE id = ?`,
				exp, dbTime(now), row.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE show_seat_states SET expires_at = ?, updated_at = ? WHERE hold_id = ? AND status = 'HELD'`,
				exp, dbTime(now), row.ID); err != nil {
				return err
			}
			row.ExpiresAt = exp
			out = row.toModel()
			found = true
			return nil
		})
	})
	if err != nil {
		return model.Hold{}, fmt.Errorf("mysql renew: %w", err)
	}
	if !found {
		return model.Hold{}, model.ErrHoldNotFound
	}
	return out, nil
}

func (r *SeatStateRepo) Release(ctx context.Context, h model.HoldHandle, now time.Time) error {
	var outcome error
	err := withRetry(ctx, txAttempts, func() error {
		outcome = nil
		return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
			row, ok, err := lockHold(ctx, tx, h.HoldID)
			if err != nil || !ok || row.HolderToken != h.HolderToken {
				return err
			}
			switch row.Status {
			case string(model.HoldPromoted):
				outcome = model.ErrHoldPromoted
				return nil
			case string(model.HoldActive):
				return finishHold(ctx, tx, row.ID, model.HoldReleased, now)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("mysql release: %w", err)
	}
	return outcome
}

func (r *SeatStateRepo) Promote(ctx context.Context, h model.HoldHandle, now time.Time) error {
	var outcome error
	err := withRetry(ctx, txAttempts, func() error {
		outcome = nil
		return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
			row, ok, err := lockHold(ctx, tx, h.HoldID)
			if err != nil {
				return err
			}
			if !ok || row.HolderToken != h.HolderToken {
				outcome = model.ErrHoldNotFound
				return nil
			}
			switch model.HoldStatus(row.Status) {
			case model.HoldPromoted:
				return nil
			case model.HoldExpired:
				outcome = model.ErrHoldExpired
				return nil
			case model.HoldReleased:
				outcome = model.ErrHoldNotFound
				return nil
			}
			if !now.Before(row.ExpiresAt) {
				outcome = model.ErrHoldExpired
				return finishHold(ctx, tx, row.ID, model.HoldExpired, now)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE show_seat_states SET status = 'SOLD', expires_at = NULL, updated_at = ?
				 WHERE hold_id = ? AND status = 'HELD'`,
				dbTime(now), row.ID); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE seat_holds SET status = ?, updated_at = ? WHERE id = ?`,
				string(model.HoldPromoted), dbTime(now), row.ID)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("mysql promote: %w", err)
	}
	return outcome
}

func (r *SeatStateRepo) Snapshot(ctx context.Context, showID string) (model.Snapshot, error) {
	var rows []seatStateRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT seat_id, status, hold_id, expires_at FROM show_seat_states WHERE show_id = ? AND status <> 'FREE'`,
		showID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("mysql snapshot: %w", err)
	}
	records := make(map[string]model.AvailabilityRecord, len(rows))
	for _, row := range rows {
		rec := model.AvailabilityRecord{SeatID: row.SeatID, HoldID: row.HoldID.String}
		switch row.Status {
		case seatHeld:
			rec.State = model.SeatHeld
			rec.ExpiresAt = row.ExpiresAt.Time.UTC()
		case seatSold:
			rec.State = model.SeatSold
		default:
			continue
		}
		records[row.SeatID] = rec
	}
	return model.Snapshot{ShowID: showID, Records: records, TakenAt: time.Now().UTC()}, nil
}

func (r *SeatStateRepo) ExpireDue(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM seat_holds WHERE status = 'ACTIVE' AND expires_at <= ? ORDER BY expires_at LIMIT ?`,
		dbTime(now), limit); err != nil {
		return nil, fmt.Errorf("mysql due holds: %w", err)
	}

	var expired []model.Hold
	for _, id := range ids {
		var (
			hold model.Hold
			done bool
		)
		err := withRetry(ctx, txAttempts, func() error {
			done = false
			return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
				row, ok, err := lockHold(ctx, tx, id)
				if err != nil || !ok || row.Status != string(model.HoldActive) || now.Before(row.ExpiresAt) {
					return err
				}
				if err := finishHold(ctx, tx, id, model.HoldExpired, now); err != nil {
					return err
				}
				row.Status = string(model.HoldExpired)
				hold = row.toModel()
				done = true
				return nil
			})
		})
		if err != nil {
			return expired, fmt.Errorf("mysql expire %s: %w", id, err)
		}
		if done {
			expired = append(expired, hold)
		}
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM seat_holds WHERE status <> 'ACTIVE' AND updated_at < ?`,
		dbTime(now.Add(-r.retention))); err != nil {
		return expired, fmt.Errorf("mysql prune holds: %w", err)
	}
	return expired, nil
}

func lockHold(ctx context.Context, tx *sqlx.Tx, holdID string) (holdRow, bool, error) {
	var row holdRow
	err := tx.GetContext(ctx, &row, `SELECT `+holdColumns+` FROM seat_holds WHERE id = ? FOR UPDATE`, holdID)
	if errors.Is(err, sql.ErrNoRows) {
		return holdRow{}, false, nil
	}
	if err != nil {
		return holdRow{}, false, err
	}
	return row, true, nil
}

// finishHold frees the seats still held by holdID and marks the hold
// with a terminal status.  The hold row must already be locked.
func finishHold(ctx context.Context, tx *sqlx.Tx, holdID string, status model.HoldStatus, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE show_seat_states SET status = 'FREE', hold_id = NULL, expires_at = NULL, updated_at = ?
		 WHERE hold_id = ? AND status = 'HELD'`,
		dbTime(now), holdID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE seat_holds SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), dbTime(now), holdID)
	return err
}
