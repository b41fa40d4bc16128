package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

// Classify wraps transport-level failures (lost connections, timeouts,
// server shutdown) as storeerr.ErrStorageUnavailable. Every other error is
// returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storeerr.ErrStorageUnavailable) {
		return err
	}
	if IsUnavailable(err) {
		return storeerr.Unavailable(op, err)
	}
	return err
}

// IsUnavailable reports whether err means the database could not be reached
// or did not answer in time.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return unavailableCode(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return unavailableCode(string(pqErr.Code))
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// SQLSTATE class 08 is connection exception, 57P is operator intervention
// (shutdown, cannot connect now), 53300 is too_many_connections.
func unavailableCode(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P") || code == "53300"
}
