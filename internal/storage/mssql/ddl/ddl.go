// Package ddl provides MSSQL-specific helpers for generating DDL and DML.
//
// The builder here:
//   - Uses SQL Server-style identifier quoting: [schema].[table], [col].
//   - Wraps CREATE TABLE in an IF OBJECT_ID(...) IS NULL guard since T-SQL
//     does not support CREATE TABLE IF NOT EXISTS.
//   - Uses @pN placeholders as expected by go-mssqldb.
package ddl

import (
	"fmt"
	"strings"

	gddl "vendorport/internal/ddl"
)

// Dialect implements ddl.Dialect for SQL Server.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

// Name implements ddl.Dialect.
func (Dialect) Name() string { return "mssql" }

// MapType maps a logical kind into a SQL Server column type. Unknown kinds
// fall back to NVARCHAR(MAX).
func (Dialect) MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case gddl.KindSerial:
		return "INT IDENTITY(1,1)"
	case gddl.KindInt, "integer":
		return "INT"
	case gddl.KindTimestamp, "datetime":
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// QuoteIdent quotes a single identifier segment using bracket syntax,
// escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func (Dialect) QuoteIdent(id string) string { return quoteIdent(id) }

func quoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// Placeholder returns @pN.
func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// BuildCreateTableSQL returns a T-SQL script that creates the table if it
// does not already exist:
//
//	IF OBJECT_ID(N'[schema].[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [schema].[table] (
//	  ...
//	);
//	END;
func (Dialect) BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	create, err := gddl.Render(t, gddl.RenderOptions{
		Dialect: "mssql ddl",
		Quote:   quoteIdent,
		Head:    "CREATE TABLE",
	})
	if err != nil {
		return "", err
	}
	fqn := gddl.QuoteFQN(t.FQN, quoteIdent)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s\nEND;",
		strings.ReplaceAll(fqn, "'", "''"),
		create,
	), nil
}

// BuildInsertReturningSQL emits INSERT ... OUTPUT INSERTED.[id] VALUES (...).
func (d Dialect) BuildInsertReturningSQL(table string, columns []string, idColumn string) (string, bool) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		gddl.QuoteFQN(table, quoteIdent),
		strings.Join(quoted, ", "),
		quoteIdent(idColumn),
		gddl.Placeholders(d, len(columns)),
	), true
}
