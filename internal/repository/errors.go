// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// booking service and handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with a concurrent one:
// the one-active-reservation-per-listing unique index fired, or InnoDB
// picked the transaction as a deadlock victim. Callers may retry.
var ErrConflict = errors.New("conflict")

// ErrListingNotFound is returned when a listing id does not exist.
var ErrListingNotFound = errors.New("listing not found")

// ErrReservationNotFound is returned when a reservation id does not exist.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrUnknownUser is returned when a write references a user id with no
// row in users.  Accounts are provisioned by the identity service; a valid
// token for an account it has not written yet lands here.
var ErrUnknownUser = errors.New("unknown user")

// ErrReviewExists is returned when a buyer reviews the same listing twice.
var ErrReviewExists = errors.New("review already exists")

// MySQL server error numbers the repositories react to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlNoReferencedRow = 1452
	mysqlDeadlock        = 1213
)

func mysqlErrorNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicateKey reports whether err is a unique index violation.
func isDuplicateKey(err error) bool { return mysqlErrorNumber(err) == mysqlDuplicateEntry }

// isMissingReference reports whether err is a foreign key insert that
// points at a row that does not exist.
func isMissingReference(err error) bool { return mysqlErrorNumber(err) == mysqlNoReferencedRow }

// isRetryable reports whether err is a transient lock failure that
// succeeds when the whole transaction is run again.
func isRetryable(err error) bool {
	switch mysqlErrorNumber(err) {
	case mysqlDeadlock, mysqlLockWaitTimeout:
		return true
	}
	return false
}
