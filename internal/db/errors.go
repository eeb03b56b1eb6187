package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// FailureReason classifies why a batch write failed
type FailureReason string

const (
	FailureNone       FailureReason = ""
	FailureConstraint FailureReason = "constraint-violation"
	FailureOverflow   FailureReason = "numeric-overflow"
	FailureConnection FailureReason = "connectivity"
	FailureUnknown    FailureReason = "unknown"
)

// SQLSTATE codes the store reacts to
const (
	CodeNumericOverflow = "22003"
	CodeUniqueViolation = "23505"
	CodeNotNull         = "23502"
	CodeAdminShutdown   = "57P01"
	CodeCrashShutdown   = "57P02"
	CodeCannotConnect   = "57P03"
	CodeTooManyConns    = "53300"
)

// StoreError is a store failure carrying a SQLSTATE code. MemoryStore
// returns it; the PostgreSQL drivers return their own types.
type StoreError struct {
	Code    string
	Message string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.Code)
}

// SQLState extracts the SQLSTATE from lib/pq, pgx or store errors
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return ""
}

// ClassifyError maps a write error to a FailureReason
func ClassifyError(err error) FailureReason {
	if err == nil {
		return FailureNone
	}

	code := SQLState(err)
	switch {
	case code == CodeNumericOverflow:
		return FailureOverflow
	case strings.HasPrefix(code, "23"):
		return FailureConstraint
	case strings.HasPrefix(code, "08"),
		code == CodeAdminShutdown,
		code == CodeCrashShutdown,
		code == CodeCannotConnect,
		code == CodeTooManyConns:
		return FailureConnection
	case code != "":
		return FailureUnknown
	}

	if isConnectivity(err) {
		return FailureConnection
	}
	return FailureUnknown
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
