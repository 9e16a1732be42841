// Package sqlite registers the "sqlite" storage backend (modernc.org/sqlite,
// pure Go). It is the default local backend and the one used for end-to-end
// tests.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"modernc.org/sqlite"

	"vendorport/internal/storage"
	"vendorport/internal/storage/sqldb"
	"vendorport/internal/storage/sqlite/ddl"
)

// Kind is the registered backend name.
const Kind = "sqlite"

// busyTimeoutMS is how long a writer waits on a locked database file.
const busyTimeoutMS = 5000

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.DB, error) {
		return Open(ctx, cfg)
	})
}

// Open opens the database at cfg.DSN, e.g. "vendorport.db" or
// "file:vendorport.db?cache=shared". The pool defaults to one connection:
// SQLite serializes writers anyway and ":memory:" databases are per
// connection.
func Open(ctx context.Context, cfg storage.Config) (*sqldb.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db, err := sqldb.Open(ctx, "sqlite", cfg.DSN, ddl.Dialect{}, maxConns)
	if err != nil {
		return nil, err
	}
	if _, err := db.Raw().ExecContext(ctx, "PRAGMA busy_timeout = "+strconv.Itoa(busyTimeoutMS)); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("sqlite: busy_timeout: %w", err)
	}
	return db.WithErrorMapper(mapError), nil
}

func mapError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return &storage.CodedError{Code: strconv.Itoa(se.Code()), Err: err}
	}
	return err
}
