// Package ddl provides MySQL-specific helpers for generating DDL and DML.
//
// Imported tables keep the layout the intake tool always produced on MySQL:
// an INT AUTO_INCREMENT key and VARCHAR(255) utf8mb4 columns.
package ddl

import (
	"strings"

	gddl "vendorport/internal/ddl"
)

// TableOptions is appended to every CREATE TABLE.
const TableOptions = " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"

// Dialect implements ddl.Dialect for MySQL.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

// Name implements ddl.Dialect.
func (Dialect) Name() string { return "mysql" }

// MapType maps a logical kind into a MySQL column type.
func (Dialect) MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case gddl.KindSerial:
		return "INT AUTO_INCREMENT"
	case gddl.KindInt, "integer":
		return "INT"
	case gddl.KindTimestamp, "datetime":
		return "DATETIME"
	default:
		return "VARCHAR(255)"
	}
}

// QuoteIdent quotes with backticks, doubling embedded backticks.
//
//	name     -> `name`
//	we`ird   -> `we``ird`
func (Dialect) QuoteIdent(id string) string { return quoteIdent(id) }

func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// Placeholder returns "?".
func (Dialect) Placeholder(int) string { return "?" }

// BuildCreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement with
// InnoDB/utf8mb4 table options.
func (Dialect) BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.Render(t, gddl.RenderOptions{
		Dialect: "mysql ddl",
		Quote:   quoteIdent,
		Head:    "CREATE TABLE IF NOT EXISTS",
		Tail:    TableOptions,
	})
}

// BuildInsertReturningSQL returns a plain INSERT; the id comes from
// LastInsertId.
func (d Dialect) BuildInsertReturningSQL(table string, columns []string, _ string) (string, bool) {
	return gddl.BuildInsertSQL(d, table, columns), false
}
