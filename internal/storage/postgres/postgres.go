// Package postgres registers the "postgres" storage backend using pgx v5.
//
// Rows are inserted one statement at a time inside the chunk transaction,
// each wrapped in a savepoint. A failing row in Postgres aborts the whole
// transaction unless it is rolled back to a savepoint, and the pipeline
// skips bad rows rather than losing the chunk.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vendorport/internal/ddl"
	"vendorport/internal/storage"
	pgddl "vendorport/internal/storage/postgres/ddl"
)

// Kind is the registered backend name.
const Kind = "postgres"

const rowSavepoint = "vp_row"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.DB, error) {
		return Open(ctx, cfg)
	})
}

//
// ===========================
//  Interface seam for testing
// ===========================
//
// poolLike is the subset of *pgxpool.Pool in use, so tests can inject a
// fake without a live server.
//

type poolLike interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// DB implements storage.DB over a pgx pool.
type DB struct{ pool poolLike }

var _ storage.DB = (*DB)(nil)

// Open parses cfg.DSN, applies the pool size and pings.
func Open(ctx context.Context, cfg storage.Config) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Dialect implements storage.DB.
func (d *DB) Dialect() ddl.Dialect { return pgddl.Dialect{} }

// Exec implements storage.DB.
func (d *DB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := d.pool.Exec(ctx, q, args...)
	return err
}

// Query implements storage.DB.
func (d *DB) Query(ctx context.Context, q string, args ...any) (storage.Rows, error) {
	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertReturning implements storage.DB using INSERT ... RETURNING.
func (d *DB) InsertReturning(ctx context.Context, table, idColumn string, columns []string, args ...any) (int64, error) {
	q, _ := pgddl.Dialect{}.BuildInsertReturningSQL(table, columns, idColumn)
	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	id, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

// BeginTx implements storage.DB.
func (d *DB) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Close implements storage.DB.
func (d *DB) Close(context.Context) error {
	d.pool.Close()
	return nil
}

// Tx implements storage.Tx over pgx.Tx.
type Tx struct{ tx pgx.Tx }

// Exec implements storage.Tx.
func (t *Tx) Exec(ctx context.Context, q string, args ...any) error {
	_, err := t.tx.Exec(ctx, q, args...)
	return err
}

// InsertRow implements storage.Tx. The insert runs under a savepoint which is
// released on success and rolled back on failure, keeping the transaction
// usable for the rows that follow.
func (t *Tx) InsertRow(ctx context.Context, q string, args ...any) error {
	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+rowSavepoint); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := t.tx.Exec(ctx, q, args...); err != nil {
		if _, rbErr := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+rowSavepoint); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return describe(err)
	}
	if _, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+rowSavepoint); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback implements storage.Tx.
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// describe folds the server detail into the message; the SQLSTATE stays
// reachable through errors.As.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.TrimSpace(pgErr.Detail) != "" {
		return fmt.Errorf("%w (%s)", err, pgErr.Detail)
	}
	return err
}
