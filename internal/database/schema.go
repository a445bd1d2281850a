package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS halls (
		id         VARCHAR(64)  NOT NULL PRIMARY KEY,
		name       VARCHAR(128) NOT NULL,
		seat_rows  INT          NOT NULL,
		seat_cols  INT          NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_tiers (
		hall_id      VARCHAR(64)  NOT NULL,
		code         VARCHAR(16)  NOT NULL,
		display_name VARCHAR(64)  NOT NULL,
		price_cents  BIGINT       NOT NULL,
		PRIMARY KEY (hall_id, code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seats (
		hall_id   VARCHAR(64) NOT NULL,
		seat_id   VARCHAR(32) NOT NULL,
		grid_row  INT         NOT NULL,
		grid_col  INT         NOT NULL,
		tier_code VARCHAR(16) NOT NULL,
		PRIMARY KEY (hall_id, seat_id),
		UNIQUE KEY uq_seats_position (hall_id, grid_row, grid_col)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS shows (
		id        VARCHAR(64)  NOT NULL PRIMARY KEY,
		hall_id   VARCHAR(64)  NOT NULL,
		title     VARCHAR(255) NOT NULL,
		starts_at DATETIME(3)  NOT NULL,
		status    VARCHAR(16)  NOT NULL DEFAULT 'SCHEDULED',
		KEY idx_shows_hall (hall_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS show_tier_prices (
		show_id     VARCHAR(64) NOT NULL,
		code        VARCHAR(16) NOT NULL,
		price_cents BIGINT      NOT NULL,
		PRIMARY KEY (show_id, code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_holds (
		id           CHAR(36)    NOT NULL PRIMARY KEY,
		show_id      VARCHAR(64) NOT NULL,
		holder_token VARCHAR(64) NOT NULL,
		seat_ids     TEXT        NOT NULL,
		status       VARCHAR(16) NOT NULL,
		expires_at   DATETIME(3) NOT NULL,
		created_at   DATETIME(3) NOT NULL,
		updated_at   DATETIME(3) NOT NULL,
		KEY idx_seat_holds_due (status, expires_at),
		KEY idx_seat_holds_show (show_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS show_seat_states (
		show_id    VARCHAR(64) NOT NULL,
		seat_id    VARCHAR(32) NOT NULL,
		status     VARCHAR(8)  NOT NULL DEFAULT 'FREE',
		hold_id    CHAR(36)    NULL,
		expires_at DATETIME(3) NULL,
		updated_at DATETIME(3) NOT NULL,
		PRIMARY KEY (show_id, seat_id),
		KEY idx_show_seat_states_hold (hold_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                   CHAR(36)     NOT NULL PRIMARY KEY,
		show_id              VARCHAR(64)  NOT NULL,
		user_id              VARCHAR(64)  NOT NULL,
		seat_ids             TEXT         NOT NULL,
		amount_cents         BIGINT       NOT NULL,
		status               VARCHAR(20)  NOT NULL,
		hold_id              CHAR(36)     NOT NULL,
		hold_expires_at      DATETIME(3)  NOT NULL,
		payment_session_ref  VARCHAR(64)  NOT NULL DEFAULT '',
		payment_redirect_url VARCHAR(512) NOT NULL DEFAULT '',
		payment_ref          VARCHAR(128) NOT NULL DEFAULT '',
		cancel_reason        VARCHAR(255) NOT NULL DEFAULT '',
		created_at           DATETIME(3)  NOT NULL,
		updated_at           DATETIME(3)  NOT NULL,
		KEY idx_bookings_user (user_id, created_at),
		KEY idx_bookings_pending (status, hold_expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reconciliation_conflicts (
		id             CHAR(36)     NOT NULL PRIMARY KEY,
		booking_id     VARCHAR(64)  NOT NULL,
		show_id        VARCHAR(64)  NOT NULL,
		user_id        VARCHAR(64)  NOT NULL,
		seat_ids       TEXT         NOT NULL,
		payment_ref    VARCHAR(128) NOT NULL,
		amount_cents   BIGINT       NOT NULL,
		booking_status VARCHAR(20)  NOT NULL,
		reason         VARCHAR(64)  NOT NULL,
		detected_at    DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_conflicts_payment (booking_id, payment_ref),
		KEY idx_conflicts_detected (detected_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates every table the service needs.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
