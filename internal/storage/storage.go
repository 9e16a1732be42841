// Package storage defines the database seam used by the ingestion pipeline
// and the import registry, plus a small factory that concrete backends
// register themselves with.
//
// Backends live in sub-packages (postgres, mysql, sqlite, mssql) and register
// from init(). Import internal/storage/all to make every built-in kind
// available.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"vendorport/internal/ddl"
)

// DB is a connection pool capable of starting transactions and executing
// DDL/DML outside of one.
type DB interface {
	// Exec runs a statement outside of any explicit transaction.
	Exec(ctx context.Context, query string, args ...any) error
	// Query runs a statement returning rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	// InsertReturning inserts one row and returns the generated idColumn.
	InsertReturning(ctx context.Context, table, idColumn string, columns []string, args ...any) (int64, error)
	// BeginTx opens a transaction.
	BeginTx(ctx context.Context) (Tx, error)
	// Dialect describes the SQL flavour of this backend.
	Dialect() ddl.Dialect
	// Close releases the pool.
	Close(ctx context.Context) error
}

// Tx is an open transaction.
type Tx interface {
	Exec(ctx context.Context, query string, args ...any) error
	// InsertRow executes a single-row insert. A failing row leaves the
	// transaction usable for subsequent rows.
	InsertRow(ctx context.Context, query string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is the subset of a result cursor the registry needs.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name, e.g. "postgres".
	Kind string
	// DSN is passed to the backend's driver.
	DSN string
	// MaxConns caps the pool size; zero leaves the driver default.
	MaxConns int
}

// Factory opens a DB for cfg.
type Factory func(ctx context.Context, cfg Config) (DB, error)

// ErrUnknownKind is returned by New for unregistered backends.
var ErrUnknownKind = errors.New("storage: unknown kind")

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on duplicate
// registration, which can only happen through a wiring mistake.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	k := strings.ToLower(strings.TrimSpace(kind))
	if _, dup := factories[k]; dup {
		panic("storage: Register called twice for " + k)
	}
	factories[k] = f
}

// New opens the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (DB, error) {
	mu.RLock()
	f, ok := factories[strings.ToLower(strings.TrimSpace(cfg.Kind))]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownKind, cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend names, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
