package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendorport/internal/storage"
)

// fakeTx records statements; embedding pgx.Tx satisfies the rest of the
// interface (unused methods would panic).
type fakeTx struct {
	pgx.Tx
	stmts    []string
	failNext bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	if f.failNext && sql != "SAVEPOINT "+rowSavepoint && sql != "ROLLBACK TO SAVEPOINT "+rowSavepoint {
		f.failNext = false
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "22001", Message: "value too long", Detail: "column 590"}
	}
	return pgconn.CommandTag{}, nil
}

func TestInsertRowReleasesSavepoint(t *testing.T) {
	t.Parallel()
	ft := &fakeTx{}
	tx := &Tx{tx: ft}

	require.NoError(t, tx.InsertRow(context.Background(), "INSERT x"))
	assert.Equal(t, []string{"SAVEPOINT vp_row", "INSERT x", "RELEASE SAVEPOINT vp_row"}, ft.stmts)
}

func TestInsertRowRollsBackToSavepoint(t *testing.T) {
	t.Parallel()
	ft := &fakeTx{failNext: true}
	tx := &Tx{tx: ft}

	err := tx.InsertRow(context.Background(), "INSERT x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column 590")
	assert.Equal(t, "22001", storage.ErrorCode(err))

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.Equal(t, []string{"SAVEPOINT vp_row", "INSERT x", "ROLLBACK TO SAVEPOINT vp_row"}, ft.stmts)

	// The transaction is still usable.
	require.NoError(t, tx.InsertRow(context.Background(), "INSERT y"))
}
