package repository

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// ConflictRepo is the audit trail of payment reconciliation conflicts.
// A (booking_id, payment_ref) pair is stored at most once.
type ConflictRepo struct {
	db *sqlx.DB
}

func NewConflictRepo(db *sqlx.DB) *ConflictRepo { return &ConflictRepo{db: db} }

type conflictRow struct {
	model.ReconciliationConflict
	SeatIDsRaw string `db:"seat_ids"`
}

// Record inserts c unless the pair is already known.  It reports whether
// a new row was written.
func (r *ConflictRepo) Record(ctx context.Context, c model.ReconciliationConflict) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO reconciliation_conflicts
		 (id, booking_id, show_id, user_id, seat_ids, payment_ref, amount_cents, booking_status, reason, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.BookingID, c.ShowID, c.UserID, joinIDs(c.SeatIDs), c.PaymentRef, c.AmountCents,
		string(c.BookingStatus), c.Reason, dbTime(c.DetectedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns the most recent conflicts first.
func (r *ConflictRepo) List(ctx context.Context, limit int) ([]model.ReconciliationConflict, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []conflictRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, booking_id, show_id, user_id, seat_ids, payment_ref, amount_cents, booking_status, reason, detected_at
		 FROM reconciliation_conflicts ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.ReconciliationConflict, 0, len(rows))
	for _, row := range rows {
		c := row.ReconciliationConflict
		c.SeatIDs = splitIDs(row.SeatIDsRaw)
		c.DetectedAt = c.DetectedAt.UTC()
		out = append(out, c)
	}
	return out, nil
}

// MemoryConflictRepo is the in-process audit trail.
type MemoryConflictRepo struct {
	mu        sync.Mutex
	conflicts []model.ReconciliationConflict
}

func NewMemoryConflictRepo() *MemoryConflictRepo { return &MemoryConflictRepo{} }

func (r *MemoryConflictRepo) Record(_ context.Context, c model.ReconciliationConflict) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conflicts {
		if existing.BookingID == c.BookingID && existing.PaymentRef == c.PaymentRef {
			return false, nil
		}
	}
	c.SeatIDs = slices.Clone(c.SeatIDs)
	r.conflicts = append(r.conflicts, c)
	return true, nil
}

func (r *MemoryConflictRepo) List(_ context.Context, limit int) ([]model.ReconciliationConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.conflicts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
