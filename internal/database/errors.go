// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package database

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomtom215/threadline/internal/logging"
)

var (
	// ErrPageNotFound indicates the requested page does not exist
	ErrPageNotFound = errors.New("page not found")

	// ErrUserNotFound indicates the requested user does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken indicates a signup collided with an existing username
	ErrUsernameTaken = errors.New("username already taken")
)

// Postgres SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

// IsUniqueConstraintError reports whether err is a unique-constraint
// violation from either driver.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// DuckDB reports "Duplicate key ... violates unique constraint"
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "unique constraint") || strings.Contains(errMsg, "duplicate key")
}

// IsTransactionConflict reports whether err is a write-write conflict
// between concurrent transactions.
func IsTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update")
}

// Now returns the current UTC time at the microsecond precision both engines store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// closeWithLog closes a resource and logs any error
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly is for error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// RollbackQuietly rolls back tx after a failed write; the original error is
// what the caller reports.
func RollbackQuietly(tx interface{ Rollback() error }) {
	_ = tx.Rollback()
}
