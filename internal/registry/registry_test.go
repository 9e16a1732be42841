package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"vendorport/internal/ingest"
	"vendorport/internal/storage"
	_ "vendorport/internal/storage/sqlite"
)

func openRegistry(t *testing.T) (*Registry, storage.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "registry.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(ctx) })

	r := New(db, zaptest.NewLogger(t))
	require.NoError(t, r.Bootstrap(ctx))
	require.NoError(t, r.Bootstrap(ctx), "bootstrap is idempotent")
	return r, db
}

func TestVendors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := openRegistry(t)

	_, err := r.CreateVendor(ctx, Vendor{Name: "  "})
	require.ErrorIs(t, err, ErrInvalidVendor)

	acme, err := r.CreateVendor(ctx, Vendor{Name: " Acme ", Email: "parts@acme.test", Phone: "555"})
	require.NoError(t, err)
	assert.Positive(t, acme.ID)
	assert.Equal(t, "Acme", acme.Name)

	got, err := r.GetVendor(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "parts@acme.test", got.Email)
	assert.Equal(t, "555", got.Phone)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)

	_, err = r.GetVendor(ctx, acme.ID+100)
	require.ErrorIs(t, err, ErrNotFound)

	def, err := r.DefaultVendor(ctx)
	require.NoError(t, err)
	again, err := r.ResolveVendor(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, def, again, "default vendor is created once")

	resolved, err := r.ResolveVendor(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, acme.ID, resolved)
	_, err = r.ResolveVendor(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)

	vs, err := r.ListVendors(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "Acme", vs[0].Name)
	assert.Equal(t, DefaultVendorName, vs[1].Name)
}

func TestImportHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, db := openRegistry(t)

	acme, err := r.CreateVendor(ctx, Vendor{Name: "Acme"})
	require.NoError(t, err)
	other, err := r.CreateVendor(ctx, Vendor{Name: "Other"})
	require.NoError(t, err)

	for _, c := range []ingest.Completion{
		{VendorID: acme.ID, Table: "imported_data_a", FileName: "a.csv", Total: 10, Processed: 9, Checksum: "00000000000000ff"},
		{VendorID: acme.ID, Table: "imported_data_b", FileName: "b.csv", Total: 3, Processed: 3},
		{VendorID: other.ID, Table: "imported_data_c", FileName: "c.csv", Total: 1, Processed: 1},
	} {
		require.NoError(t, db.Exec(ctx, `CREATE TABLE "`+c.Table+`" (id INTEGER PRIMARY KEY)`))
		id, err := r.Record(ctx, c)
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	all, err := r.ListImports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "imported_data_c", all[0].Table, "newest first")

	mine, err := r.ListImports(ctx, acme.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	a, err := r.GetImport(ctx, "imported_data_a")
	require.NoError(t, err)
	assert.Equal(t, "Acme", a.VendorName)
	assert.Equal(t, 10, a.Total)
	assert.Equal(t, 9, a.Processed)
	assert.Equal(t, "00000000000000ff", a.Checksum)
	assert.False(t, a.ImportedAt.IsZero())

	b, err := r.GetImport(ctx, "imported_data_b")
	require.NoError(t, err)
	assert.Empty(t, b.Checksum)

	// Unknown tables are never dropped.
	_, err = r.DeleteImport(ctx, "vendors")
	require.ErrorIs(t, err, ErrNotFound)

	// Vendor survives while it still has imports.
	res, err := r.DeleteImport(ctx, "imported_data_a")
	require.NoError(t, err)
	assert.True(t, res.TableDropped)
	_, err = r.GetVendor(ctx, acme.ID)
	require.NoError(t, err)
	_, err = r.GetImport(ctx, "imported_data_a")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, db.Exec(ctx, `SELECT 1 FROM "imported_data_a"`))

	// Last import takes the vendor with it.
	_, err = r.DeleteImport(ctx, "imported_data_b")
	require.NoError(t, err)
	_, err = r.GetVendor(ctx, acme.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetVendor(ctx, other.ID)
	require.NoError(t, err)
}

func TestFlexTime(t *testing.T) {
	t.Parallel()
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, src := range []any{
		want,
		"2024-05-06 07:08:09",
		"2024-05-06T07:08:09Z",
		[]byte("2024-05-06 07:08:09+00:00"),
	} {
		var got time.Time
		require.NoError(t, flexTime{&got}.Scan(src), "%v", src)
		assert.True(t, want.Equal(got), "%v -> %v", src, got)
	}
	var got time.Time
	require.NoError(t, flexTime{&got}.Scan(nil))
	assert.True(t, got.IsZero())
	assert.Error(t, flexTime{&got}.Scan(42))
	assert.Error(t, flexTime{&got}.Scan("yesterday"))
}
