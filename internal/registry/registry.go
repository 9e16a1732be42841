// Package registry keeps the durable side of ingestion: the vendors files are
// imported for and the import history that records every completed run.
//
// The history is the only way to find an imported table again, and it is
// the allow-list for dropping one.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vendorport/internal/ddl"
	"vendorport/internal/ingest"
	"vendorport/internal/storage"
)

// Table names.
const (
	VendorsTable = "vendors"
	HistoryTable = "import_history"
)

// DefaultVendorName is used for runs started without a vendor.
const DefaultVendorName = "Default Vendor"

var (
	// ErrNotFound is returned when a vendor or import does not exist.
	ErrNotFound = errors.New("registry: not found")
	// ErrInvalidVendor is returned for vendors without a name.
	ErrInvalidVendor = errors.New("registry: vendor name is required")
)

// Vendor is a supplier files are imported for.
type Vendor struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Import is one ingestion record.
type Import struct {
	ID         int64     `json:"id"`
	VendorID   int64     `json:"vendor_id"`
	VendorName string    `json:"vendor_name,omitempty"`
	Table      string    `json:"table"`
	FileName   string    `json:"file_name"`
	Total      int       `json:"total_records"`
	Processed  int       `json:"processed_records"`
	Checksum   string    `json:"checksum,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
}

var vendorColumns = []string{"vendor_name", "contact_person", "email", "phone", "address", "created_at"}

var historyColumns = []string{"vendor_id", "imported_table", "file_name", "total_records", "processed_records", "checksum", "imported_at"}

// Registry reads and writes vendors and import history.
type Registry struct {
	db  storage.DB
	d   ddl.Dialect
	log *zap.Logger
	now func() time.Time
}

var _ ingest.Recorder = (*Registry)(nil)

// New returns a Registry over db.
func New(db storage.DB, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		db:  db,
		d:   db.Dialect(),
		log: log,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

func (r *Registry) q(id string) string { return r.d.QuoteIdent(id) }

func (r *Registry) cols(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = r.q(n)
	}
	return strings.Join(out, ", ")
}

// Bootstrap creates the registry tables if they do not exist.
func (r *Registry) Bootstrap(ctx context.Context) error {
	text := r.d.MapType(ddl.KindText)
	ts := r.d.MapType(ddl.KindTimestamp)
	integer := r.d.MapType(ddl.KindInt)
	key := ddl.ColumnDef{Name: "id", SQLType: r.d.MapType(ddl.KindSerial), PrimaryKey: true}

	tables := []ddl.TableDef{
		{FQN: VendorsTable, Columns: []ddl.ColumnDef{
			key,
			{Name: "vendor_name", SQLType: text},
			{Name: "contact_person", SQLType: text, Nullable: true},
			{Name: "email", SQLType: text, Nullable: true},
			{Name: "phone", SQLType: text, Nullable: true},
			{Name: "address", SQLType: text, Nullable: true},
			{Name: "created_at", SQLType: ts},
		}},
		{FQN: HistoryTable, Columns: []ddl.ColumnDef{
			key,
			{Name: "vendor_id", SQLType: integer},
			{Name: "imported_table", SQLType: text},
			{Name: "file_name", SQLType: text},
			{Name: "total_records", SQLType: integer},
			{Name: "processed_records", SQLType: integer},
			{Name: "checksum", SQLType: text, Nullable: true},
			{Name: "imported_at", SQLType: ts},
		}},
	}
	for _, t := range tables {
		stmt, err := r.d.BuildCreateTableSQL(t)
		if err != nil {
			return fmt.Errorf("registry: render %s: %w", t.FQN, err)
		}
		if err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("registry: create %s: %w", t.FQN, err)
		}
	}
	r.log.Info("registry tables ready", zap.String("dialect", r.d.Name()))
	return nil
}

// CreateVendor inserts v and returns it with its id and creation time.
func (r *Registry) CreateVendor(ctx context.Context, v Vendor) (Vendor, error) {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return Vendor{}, ErrInvalidVendor
	}
	v.CreatedAt = r.now()
	id, err := r.db.InsertReturning(ctx, VendorsTable, "id", vendorColumns,
		v.Name, v.ContactPerson, v.Email, v.Phone, v.Address, v.CreatedAt)
	if err != nil {
		return Vendor{}, fmt.Errorf("registry: create vendor: %w", err)
	}
	v.ID = id
	r.log.Info("vendor created", zap.Int64("vendor_id", id), zap.String("name", v.Name))
	return v, nil
}

func (r *Registry) vendorSelect() string {
	return "SELECT " + r.cols(append([]string{"id"}, vendorColumns...)) + " FROM " + r.q(VendorsTable)
}

func scanVendor(rows storage.Rows) (Vendor, error) {
	var (
		v                           Vendor
		contact, email, phone, addr sql.NullString
	)
	err := rows.Scan(&v.ID, &v.Name, &contact, &email, &phone, &addr, flexTime{&v.CreatedAt})
	v.ContactPerson, v.Email, v.Phone, v.Address = contact.String, email.String, phone.String, addr.String
	return v, err
}

func (r *Registry) queryVendors(ctx context.Context, q string, args ...any) ([]Vendor, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: query vendors: %w", err)
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("registry: scan vendor: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVendor returns the vendor with id.
func (r *Registry) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	vs, err := r.queryVendors(ctx, r.vendorSelect()+" WHERE "+r.q("id")+" = "+r.d.Placeholder(1), id)
	if err != nil {
		return Vendor{}, err
	}
	if len(vs) == 0 {
		return Vendor{}, fmt.Errorf("%w: vendor %d", ErrNotFound, id)
	}
	return vs[0], nil
}

// ListVendors returns all vendors by name.
func (r *Registry) ListVendors(ctx context.Context) ([]Vendor, error) {
	return r.queryVendors(ctx, r.vendorSelect()+" ORDER BY "+r.q("vendor_name")+", "+r.q("id"))
}

// DefaultVendor returns the id of the default vendor, creating it on first use.
func (r *Registry) DefaultVendor(ctx context.Context) (int64, error) {
	vs, err := r.queryVendors(ctx,
		r.vendorSelect()+" WHERE "+r.q("vendor_name")+" = "+r.d.Placeholder(1)+" ORDER BY "+r.q("id"),
		DefaultVendorName)
	if err != nil {
		return 0, err
	}
	if len(vs) > 0 {
		return vs[0].ID, nil
	}
	v, err := r.CreateVendor(ctx, Vendor{Name: DefaultVendorName})
	if err != nil {
		return 0, err
	}
	return v.ID, nil
}

// ResolveVendor returns id when that vendor exists, or the default vendor
// when id is zero.
func (r *Registry) ResolveVendor(ctx context.Context, id int64) (int64, error) {
	if id <= 0 {
		return r.DefaultVendor(ctx)
	}
	if _, err := r.GetVendor(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Record implements ingest.Recorder.
func (r *Registry) Record(ctx context.Context, c ingest.Completion) (int64, error) {
	var checksum any
	if c.Checksum != "" {
		checksum = c.Checksum
	}
	id, err := r.db.InsertReturning(ctx, HistoryTable, "id", historyColumns,
		c.VendorID, c.Table, c.FileName, c.Total, c.Processed, checksum, r.now())
	if err != nil {
		return 0, fmt.Errorf("registry: record import %s: %w", c.Table, err)
	}
	return id, nil
}

func (r *Registry) importSelect() string {
	h := func(c string) string { return "h." + r.q(c) }
	return "SELECT " + strings.Join([]string{
		h("id"), h("vendor_id"), "v." + r.q("vendor_name"), h("imported_table"), h("file_name"),
		h("total_records"), h("processed_records"), h("checksum"), h("imported_at"),
	}, ", ") +
		" FROM " + r.q(HistoryTable) + " h LEFT JOIN " + r.q(VendorsTable) + " v ON v." + r.q("id") + " = h." + r.q("vendor_id")
}

func (r *Registry) queryImports(ctx context.Context, q string, args ...any) ([]Import, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: query imports: %w", err)
	}
	defer rows.Close()
	var out []Import
	for rows.Next() {
		var (
			im             Import
			vendor, digest sql.NullString
		)
		if err := rows.Scan(&im.ID, &im.VendorID, &vendor, &im.Table, &im.FileName,
			&im.Total, &im.Processed, &digest, flexTime{&im.ImportedAt}); err != nil {
			return nil, fmt.Errorf("registry: scan import: %w", err)
		}
		im.VendorName, im.Checksum = vendor.String, digest.String
		out = append(out, im)
	}
	return out, rows.Err()
}

// ListImports returns the history newest first, restricted to one vendor when
// vendorID is positive.
func (r *Registry) ListImports(ctx context.Context, vendorID int64) ([]Import, error) {
	q := r.importSelect()
	var args []any
	if vendorID > 0 {
		q += " WHERE h." + r.q("vendor_id") + " = " + r.d.Placeholder(1)
		args = append(args, vendorID)
	}
	q += " ORDER BY h." + r.q("imported_at") + " DESC, h." + r.q("id") + " DESC"
	return r.queryImports(ctx, q, args...)
}

// GetImport returns the ingestion record for table.
func (r *Registry) GetImport(ctx context.Context, table string) (Import, error) {
	ims, err := r.queryImports(ctx, r.importSelect()+" WHERE h."+r.q("imported_table")+" = "+r.d.Placeholder(1), table)
	if err != nil {
		return Import{}, err
	}
	if len(ims) == 0 {
		return Import{}, fmt.Errorf("%w: import %q", ErrNotFound, table)
	}
	return ims[0], nil
}

// DeleteResult reports what DeleteImport removed.
type DeleteResult struct {
	Table        string `json:"table"`
	VendorID     int64  `json:"vendor_id"`
	TableDropped bool   `json:"table_dropped"`
}

// DeleteImport removes the ingestion record for table, deletes its vendor if
// no other import refers to it and drops the table. Tables unknown to the
// history are never dropped. A failed DROP leaves the history change in
// place and is reported through TableDropped.
func (r *Registry) DeleteImport(ctx context.Context, table string) (DeleteResult, error) {
	im, err := r.GetImport(ctx, table)
	if err != nil {
		return DeleteResult{}, err
	}
	res := DeleteResult{Table: im.Table, VendorID: im.VendorID}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("registry: begin: %w", err)
	}
	p := r.d.Placeholder
	stmts := []struct {
		q    string
		args []any
	}{
		{"DELETE FROM " + r.q(HistoryTable) + " WHERE " + r.q("imported_table") + " = " + p(1), []any{im.Table}},
		{"DELETE FROM " + r.q(VendorsTable) + " WHERE " + r.q("id") + " = " + p(1) +
			" AND NOT EXISTS (SELECT 1 FROM " + r.q(HistoryTable) + " WHERE " + r.q("vendor_id") + " = " + p(2) + ")",
			[]any{im.VendorID, im.VendorID}},
	}
	for _, s := range stmts {
		if err := tx.Exec(ctx, s.q, s.args...); err != nil {
			_ = tx.Rollback(ctx)
			return res, fmt.Errorf("registry: delete import %s: %w", im.Table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("registry: commit delete %s: %w", im.Table, err)
	}

	if err := r.db.Exec(ctx, ddl.BuildDropTableSQL(r.d, im.Table)); err != nil {
		r.log.Warn("drop imported table", zap.String("table", im.Table), zap.Error(err))
		return res, nil
	}
	res.TableDropped = true
	r.log.Info("import deleted", zap.String("table", im.Table), zap.Int64("vendor_id", im.VendorID))
	return res, nil
}
