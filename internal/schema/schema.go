// Package schema derives the per-run target table from a field mapping: a
// timestamped table name, one sanitized text column per mapped field and
// the dialect-specific CREATE and INSERT statements.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"vendorport/internal/ddl"
)

const (
	// DefaultTablePrefix is prepended to the run timestamp.
	DefaultTablePrefix = "imported_data_"
	// TimestampLayout formats the run time to second precision.
	TimestampLayout = "2006_01_02_150405"
	// IDColumn is the auto-incrementing surrogate key added to every table.
	IDColumn = "id"
)

var (
	// ErrNoFields is returned when the mapping names no fields.
	ErrNoFields = errors.New("schema: no fields to create columns for")
	// ErrColumnCollision is returned when two fields sanitize to the same
	// column, or a field sanitizes to the surrogate key name.
	ErrColumnCollision = errors.New("schema: column name collision")
)

// Options controls table naming.
type Options struct {
	// Prefix defaults to DefaultTablePrefix.
	Prefix string
	// Now defaults to time.Now.
	Now func() time.Time
	// UniqueSuffix appends "_" and 8 hex characters of a random UUID so
	// runs started within the same second get distinct tables.
	UniqueSuffix bool
}

// Target is the table a run writes into.
type Target struct {
	// Table is the generated table name.
	Table string
	// Fields are the mapped field names in insert order.
	Fields []string
	// Columns are the sanitized column names, parallel to Fields.
	Columns []string
	// CreateSQL creates the table if it does not exist.
	CreateSQL string
	// InsertSQL inserts one row; it has one placeholder per field.
	InsertSQL string
	// DropSQL drops the table.
	DropSQL string
}

var (
	trailingPunct = regexp.MustCompile(`[:;.,]+$`)
	nonWord       = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// Sanitize turns a field name into a column identifier: spaces become
// underscores, trailing ":;.," are stripped and any other character outside
// [A-Za-z0-9_] becomes an underscore.
//
//	"Part Name:"  -> "Part_Name"
//	"Price ($)"   -> "Price____"
//	"590"         -> "590"
func Sanitize(field string) string {
	s := strings.ReplaceAll(field, " ", "_")
	s = trailingPunct.ReplaceAllString(s, "")
	return nonWord.ReplaceAllString(s, "_")
}

// TableName returns prefix + the formatted timestamp, with an optional
// random suffix.
func TableName(o Options) string {
	prefix := o.Prefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	name := prefix + now().Format(TimestampLayout)
	if o.UniqueSuffix {
		name += "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return name
}

// Columns sanitizes fields and rejects collisions.
func Columns(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	cols := make([]string, len(fields))
	owner := make(map[string]string, len(fields))
	for i, f := range fields {
		c := Sanitize(f)
		if c == "" {
			return nil, fmt.Errorf("%w: field %q sanitizes to an empty name", ErrColumnCollision, f)
		}
		if strings.EqualFold(c, IDColumn) {
			return nil, fmt.Errorf("%w: field %q clashes with the %q key column", ErrColumnCollision, f, IDColumn)
		}
		// Most engines compare identifiers case-insensitively.
		key := strings.ToLower(c)
		if prev, dup := owner[key]; dup {
			return nil, fmt.Errorf("%w: fields %q and %q both map to column %q", ErrColumnCollision, prev, f, c)
		}
		owner[key] = f
		cols[i] = c
	}
	return cols, nil
}

// Synthesize builds the Target for fields using dialect d.
func Synthesize(d ddl.Dialect, fields []string, o Options) (Target, error) {
	cols, err := Columns(fields)
	if err != nil {
		return Target{}, err
	}
	table := TableName(o)

	def := ddl.TableDef{FQN: table, Columns: make([]ddl.ColumnDef, 0, len(cols)+1)}
	def.Columns = append(def.Columns, ddl.ColumnDef{
		Name:       IDColumn,
		SQLType:    d.MapType(ddl.KindSerial),
		PrimaryKey: true,
	})
	for _, c := range cols {
		def.Columns = append(def.Columns, ddl.ColumnDef{
			Name:     c,
			SQLType:  d.MapType(ddl.KindText),
			Nullable: true,
		})
	}
	create, err := d.BuildCreateTableSQL(def)
	if err != nil {
		return Target{}, fmt.Errorf("schema: %w", err)
	}

	return Target{
		Table:     table,
		Fields:    append([]string(nil), fields...),
		Columns:   cols,
		CreateSQL: create,
		InsertSQL: ddl.BuildInsertSQL(d, table, cols),
		DropSQL:   ddl.BuildDropTableSQL(d, table),
	}, nil
}
