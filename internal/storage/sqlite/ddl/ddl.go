// Package ddl provides SQLite-specific helpers for generating DDL and DML.
//
// The builder here:
//   - Uses simple double-quoted identifiers: "table", "col".
//   - Emits CREATE TABLE IF NOT EXISTS.
//   - Maps the serial kind to INTEGER so a single-column primary key becomes
//     the rowid alias and auto-increments.
package ddl

import (
	"strings"

	gddl "vendorport/internal/ddl"
)

// Dialect implements ddl.Dialect for SQLite.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

// Name implements ddl.Dialect.
func (Dialect) Name() string { return "sqlite" }

// MapType maps a logical kind into a SQLite column type. Timestamps are
// declared TIMESTAMP so the driver hands them back as time values.
func (Dialect) MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case gddl.KindSerial, gddl.KindInt, "integer", "bigint":
		return "INTEGER"
	case gddl.KindTimestamp, "datetime":
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// QuoteIdent quotes a single identifier segment.
func (Dialect) QuoteIdent(id string) string { return quoteIdent(id) }

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// Placeholder returns "?".
func (Dialect) Placeholder(int) string { return "?" }

// BuildCreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement.
func (Dialect) BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.Render(t, gddl.RenderOptions{
		Dialect: "sqlite ddl",
		Quote:   quoteIdent,
		Head:    "CREATE TABLE IF NOT EXISTS",
	})
}

// BuildInsertReturningSQL returns a plain INSERT; the id comes from
// LastInsertId.
func (d Dialect) BuildInsertReturningSQL(table string, columns []string, _ string) (string, bool) {
	return gddl.BuildInsertSQL(d, table, columns), false
}
