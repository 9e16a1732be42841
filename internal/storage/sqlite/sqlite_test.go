package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendorport/internal/ddl"
	"vendorport/internal/storage"
)

func openTemp(t *testing.T) storage.DB {
	t.Helper()
	db, err := storage.New(context.Background(), storage.Config{
		Kind: Kind,
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTemp(t)
	d := db.Dialect()

	create, err := d.BuildCreateTableSQL(ddl.TableDef{
		FQN: "items",
		Columns: []ddl.ColumnDef{
			{Name: "id", SQLType: d.MapType(ddl.KindSerial), PrimaryKey: true},
			{Name: "name", SQLType: d.MapType(ddl.KindText)},
		},
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(ctx, create))

	id, err := db.InsertReturning(ctx, "items", "id", []string{"name"}, "first")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	insert := ddl.BuildInsertSQL(d, "items", []string{"name"})
	require.NoError(t, tx.InsertRow(ctx, insert, "second"))
	// NOT NULL violation fails only this row.
	err = tx.InsertRow(ctx, insert, nil)
	require.Error(t, err)
	assert.NotEmpty(t, storage.ErrorCode(err))
	require.NoError(t, tx.InsertRow(ctx, insert, "third"))
	require.NoError(t, tx.Commit(ctx))

	rows, err := db.Query(ctx, `SELECT name FROM "items" ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"first", "second", "third"}, names)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), storage.Config{})
	require.Error(t, err)
}
