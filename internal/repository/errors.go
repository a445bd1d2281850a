// Package repository holds the MySQL and in-memory persistence of seat
// state, bookings, reconciliation conflicts and catalog reference data.
package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDuplicateKey = 1062
	mysqlErrDeadlock     = 1213
	mysqlErrLockWait     = 1205
)

// isRetryable reports whether err is a deadlock or lock wait timeout,
// after which InnoDB has rolled the transaction back.
func isRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWait
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateKey
}

// dbTime normalises t to the DATETIME(3) precision of the schema.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func joinIDs(ids []string) string { return strings.Join(ids, ",") }

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
