package remote

import (
	"errors"
	"strings"

	"fieldsync/internal/fieldsync"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes the sync engine reacts to.
const (
	pgUniqueViolation        = "23505" // unique_violation
	pgForeignKeyViolation    = "23503" // foreign_key_violation
	pgNotNullViolation       = "23502" // not_null_violation
	pgCheckViolation         = "23514" // check_violation
	pgSerializationFailure   = "40001" // serialization_failure
	pgDeadlockDetected       = "40P01" // deadlock_detected
	pgDiskFull               = "53100" // disk_full
	pgInsufficientPrivilege  = "42501" // insufficient_privilege
	pgConnectionExceptionCls = "08"    // connection_exception class
)

// classify wraps a driver error with its failure kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return fieldsync.NewError(kindOf(err), op, err)
}

func kindOf(err error) fieldsync.Kind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation, pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return fieldsync.KindConflict
		case pgErr.Code == pgForeignKeyViolation, pgErr.Code == pgNotNullViolation, pgErr.Code == pgCheckViolation:
			return fieldsync.KindConstraint
		case pgErr.Code == pgDiskFull:
			return fieldsync.KindStorageQuota
		case pgErr.Code == pgInsufficientPrivilege:
			return fieldsync.KindPermission
		case strings.HasPrefix(pgErr.Code, pgConnectionExceptionCls):
			return fieldsync.KindConnectivity
		}
		return fieldsync.KindUnknown
	}

	if pgconn.Timeout(err) {
		return fieldsync.KindConnectivity
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fieldsync.KindNotFound
	}

	// The sqlite driver only exposes messages.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "database is locked"):
		return fieldsync.KindConflict
	case strings.Contains(msg, "constraint failed"):
		return fieldsync.KindConstraint
	case strings.Contains(msg, "database or disk is full"):
		return fieldsync.KindStorageQuota
	case strings.Contains(msg, "attempt to write a readonly database"):
		return fieldsync.KindPermission
	}
	return fieldsync.KindOf(err)
}
