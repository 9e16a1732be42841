// Package ddl contains Postgres-specific helpers for generating DDL and DML.
package ddl

import (
	"strconv"
	"strings"

	gddl "vendorport/internal/ddl"
)

// Dialect implements ddl.Dialect for Postgres.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

// Name implements ddl.Dialect.
func (Dialect) Name() string { return "postgres" }

// MapType normalizes a logical kind into a Postgres SQL type.
//
//	"serial"              -> BIGSERIAL
//	"int"/"integer"       -> BIGINT
//	"timestamp"           -> TIMESTAMPTZ
//	everything else       -> TEXT
func (Dialect) MapType(kind string) string { return MapType(kind) }

// MapType is the package-level form of Dialect.MapType.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case gddl.KindSerial:
		return "BIGSERIAL"
	case gddl.KindInt, "integer", "bigint":
		return "BIGINT"
	case gddl.KindTimestamp, "timestamptz":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// QuoteIdent safely quotes a single identifier segment.
func (Dialect) QuoteIdent(id string) string { return QuoteIdent(id) }

// QuoteIdent is the package-level form of Dialect.QuoteIdent.
func QuoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// Placeholder returns $n.
func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// BuildCreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement.
func (Dialect) BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.Render(t, gddl.RenderOptions{
		Dialect: "postgres ddl",
		Quote:   QuoteIdent,
		Head:    "CREATE TABLE IF NOT EXISTS",
	})
}

// BuildInsertReturningSQL appends RETURNING <id>.
func (d Dialect) BuildInsertReturningSQL(table string, columns []string, idColumn string) (string, bool) {
	return gddl.BuildInsertSQL(d, table, columns) + " RETURNING " + QuoteIdent(idColumn), true
}
