// Package postgres implements the storage interfaces on PostgreSQL via
// database/sql and lib/pq. Uniqueness lives in a unique index on
// transactions.reference_code; conditional transitions are single-row
// UPDATEs guarded on the current status. Schema lives in
// migrations/postgres and is applied by cmd/migrate.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/okazakov/bookbot/internal/storage"
)

// pq class 23505 is unique_violation.
const uniqueViolationCode = "23505"

// Open connects to postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: opening connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("Open: pinging database: %w", err)
	}
	return db, nil
}

// mapInsertErr converts driver-level constraint errors into the typed
// storage errors, so callers never match on error text.
func mapInsertErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return storage.ErrUniqueViolation
	}
	return err
}

// mapScanErr converts sql.ErrNoRows into storage.ErrNotFound.
func mapScanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
