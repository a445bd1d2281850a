package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking-core/internal/model"
)

// BookingRepo persists bookings in MySQL.  Status changes go through
// Transition, a conditional UPDATE on the current status, so concurrent
// payment callbacks cannot both win.
type BookingRepo struct {
	db *sqlx.DB
}

func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// bookingRow mirrors the bookings table; seat ids are stored comma
// separated.
type bookingRow struct {
	model.Booking
	SeatIDsRaw string `db:"seat_ids"`
}

func (r bookingRow) toModel() model.Booking {
	b := r.Booking
	b.SeatIDs = splitIDs(r.SeatIDsRaw)
	b.HoldExpiresAt = b.HoldExpiresAt.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b
}

const bookingColumns = `id, show_id, user_id, seat_ids, amount_cents, status, hold_id, hold_expires_at,
	payment_session_ref, payment_redirect_url, payment_ref, cancel_reason, created_at, updated_at`

func (r *BookingRepo) Create(ctx context.Context, b model.Booking) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ShowID, b.UserID, joinIDs(b.SeatIDs), b.AmountCents, string(b.Status), b.HoldID, dbTime(b.HoldExpiresAt),
		b.PaymentSessionRef, b.PaymentRedirectURL, b.PaymentRef, b.CancelReason, dbTime(b.CreatedAt), dbTime(b.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("booking %s already exists: %w", b.ID, err)
		}
		return err
	}
	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id string) (model.Booking, error) {
	var row bookingRow
	err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, model.ErrBookingNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	return row.toModel(), nil
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	var rows []bookingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *BookingRepo) SetPaymentSession(ctx context.Context, id string, s model.PaymentSession, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_session_ref = ?, payment_redirect_url = ?, updated_at = ? WHERE id = ?`,
		s.Ref, s.RedirectURL, dbTime(at), id)
	return err
}

func (r *BookingRepo) UpdateHoldExpiry(ctx context.Context, id string, expiresAt, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET hold_expires_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		dbTime(expiresAt), dbTime(at), id, string(model.BookingPendingPayment))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: booking %s is not pending", model.ErrInvalidState, id)
	}
	return nil
}

// Transition applies t only if the booking is still in t.From.
func (r *BookingRepo) Transition(ctx context.Context, id string, t model.BookingTransition) (bool, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(t.To), dbTime(t.At)}
	if t.PaymentRef != "" {
		sets = append(sets, "payment_ref = ?")
		args = append(args, t.PaymentRef)
	}
	if t.Reason != "" {
		sets = append(sets, "cancel_reason = ?")
		args = append(args, t.Reason)
	}
	args = append(args, id, string(t.From))
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *BookingRepo) ListStalePending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	var rows []bookingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = ? AND hold_expires_at <= ? ORDER BY hold_expires_at LIMIT ?`,
		string(model.BookingPendingPayment), dbTime(now), limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
