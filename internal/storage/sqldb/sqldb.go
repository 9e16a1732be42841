// Package sqldb adapts database/sql drivers (MySQL, SQLite, SQL Server) to
// storage.DB and storage.Tx.
//
// Inserts inside a transaction go through prepared statements cached per
// transaction, so a chunk of a thousand rows prepares its INSERT once.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vendorport/internal/ddl"
	"vendorport/internal/storage"
)

//
// =======================
//  Testability-first seams
// =======================
//
// dbCore and txCore mirror the subset of *sql.DB / *sql.Tx in use; the real*
// wrappers below satisfy them in production and tests inject light fakes.
//

type stmtCore interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

type txCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (stmtCore, error)
	Commit() error
	Rollback() error
}

type dbCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (storage.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txCore, error)
	Close() error
}

type realStmt struct{ s *sql.Stmt }

func (r realStmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	return r.s.ExecContext(ctx, args...)
}
func (r realStmt) Close() error { return r.s.Close() }

type realTx struct{ tx *sql.Tx }

func (r realTx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.tx.ExecContext(ctx, q, args...)
}
func (r realTx) PrepareContext(ctx context.Context, q string) (stmtCore, error) {
	st, err := r.tx.PrepareContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return realStmt{st}, nil
}
func (r realTx) Commit() error   { return r.tx.Commit() }
func (r realTx) Rollback() error { return r.tx.Rollback() }

type realDB struct{ db *sql.DB }

func (r realDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, q, args...)
}
func (r realDB) QueryContext(ctx context.Context, q string, args ...any) (storage.Rows, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}
func (r realDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txCore, error) {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return realTx{tx}, nil
}
func (r realDB) Close() error { return r.db.Close() }

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

//
// ===========
//  DB adapter
// ===========
//

// DB implements storage.DB over database/sql.
type DB struct {
	core    dbCore
	raw     *sql.DB
	dialect ddl.Dialect
	mapErr  func(error) error
}

// WithErrorMapper installs f to translate driver errors returned from row
// inserts, e.g. to attach a storage.CodedError.
func (d *DB) WithErrorMapper(f func(error) error) *DB {
	d.mapErr = f
	return d
}

var _ storage.DB = (*DB)(nil)

// Open opens driver/dsn, applies the pool limit and pings with a timeout to
// fail fast on bad DSNs.
func Open(ctx context.Context, driver, dsn string, d ddl.Dialect, maxConns int) (*DB, error) {
	raw, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	if maxConns > 0 {
		raw.SetMaxOpenConns(maxConns)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := raw.PingContext(pingCtx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("%s: ping: %w", driver, err)
	}
	return Wrap(raw, d), nil
}

// Wrap adapts an already opened *sql.DB.
func Wrap(raw *sql.DB, d ddl.Dialect) *DB {
	return &DB{core: realDB{raw}, raw: raw, dialect: d}
}

// Raw exposes the underlying *sql.DB for backend-specific setup.
func (d *DB) Raw() *sql.DB { return d.raw }

// Dialect implements storage.DB.
func (d *DB) Dialect() ddl.Dialect { return d.dialect }

// Exec implements storage.DB.
func (d *DB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := d.core.ExecContext(ctx, q, args...)
	return err
}

// Query implements storage.DB.
func (d *DB) Query(ctx context.Context, q string, args ...any) (storage.Rows, error) {
	return d.core.QueryContext(ctx, q, args...)
}

// InsertReturning implements storage.DB. Dialects without an OUTPUT or
// RETURNING form fall back to the driver's LastInsertId.
func (d *DB) InsertReturning(ctx context.Context, table, idColumn string, columns []string, args ...any) (int64, error) {
	q, returnsRow := d.dialect.BuildInsertReturningSQL(table, columns, idColumn)
	if !returnsRow {
		res, err := d.core.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	rows, err := d.core.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("insert returned no id")
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}

// BeginTx implements storage.DB.
func (d *DB) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := d.core.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, mapErr: d.mapErr}, nil
}

// Close implements storage.DB.
func (d *DB) Close(context.Context) error { return d.core.Close() }

//
// ===========
//  Tx adapter
// ===========
//

// Tx implements storage.Tx over a database/sql transaction.
type Tx struct {
	tx     txCore
	stmts  map[string]stmtCore
	mapErr func(error) error
}

// Exec implements storage.Tx.
func (t *Tx) Exec(ctx context.Context, q string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, q, args...)
	return err
}

// InsertRow implements storage.Tx. MySQL, SQLite and SQL Server roll back
// only the failing statement, so the transaction stays usable.
func (t *Tx) InsertRow(ctx context.Context, q string, args ...any) error {
	st, ok := t.stmts[q]
	if !ok {
		var err error
		st, err = t.tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		if t.stmts == nil {
			t.stmts = make(map[string]stmtCore, 1)
		}
		t.stmts[q] = st
	}
	if _, err := st.ExecContext(ctx, args...); err != nil {
		if t.mapErr != nil {
			return t.mapErr(err)
		}
		return err
	}
	return nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit(context.Context) error {
	t.closeStmts()
	return t.tx.Commit()
}

// Rollback implements storage.Tx.
func (t *Tx) Rollback(context.Context) error {
	t.closeStmts()
	return t.tx.Rollback()
}

func (t *Tx) closeStmts() {
	for q, st := range t.stmts {
		_ = st.Close()
		delete(t.stmts, q)
	}
}
