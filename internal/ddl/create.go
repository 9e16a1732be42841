// Package ddl defines a small, backend-agnostic model for SQL DDL and the
// helpers dialects use to render it.
//
// Backend packages (internal/storage/<kind>/ddl) implement Dialect on top of
// Render, supplying their identifier quoting and the wrapper that makes the
// statement idempotent for their engine.
package ddl

import (
	"fmt"
	"strings"
)

// RenderOptions controls how Render emits a CREATE TABLE statement.
type RenderOptions struct {
	// Dialect is used in error messages, e.g. "postgres ddl".
	Dialect string
	// Quote quotes a single identifier segment.
	Quote func(string) string
	// Head is emitted before the quoted table name,
	// e.g. "CREATE TABLE IF NOT EXISTS".
	Head string
	// Tail is appended after the closing parenthesis, e.g. table options.
	Tail string
}

// Render validates t and renders:
//
//	<Head> <quoted FQN> (
//	  <col> <type> [NOT NULL] [DEFAULT expr],
//	  ...,
//	  PRIMARY KEY (<pk cols>)
//	)<Tail>;
//
// Columns with PrimaryKey == true are collected into one table constraint.
func Render(t TableDef, o RenderOptions) (string, error) {
	prefix := o.Dialect
	if prefix == "" {
		prefix = "ddl"
	}
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", prefix)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", prefix)
	}
	quote := o.Quote
	if quote == nil {
		quote = func(s string) string { return s }
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", prefix, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", prefix, name)
		}

		var sb strings.Builder
		sb.WriteString(quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	head := strings.TrimSpace(o.Head)
	if head == "" {
		head = "CREATE TABLE"
	}
	return fmt.Sprintf(
		"%s %s (\n  %s\n)%s;",
		head,
		QuoteFQN(fqn, quote),
		strings.Join(cols, ",\n  "),
		o.Tail,
	), nil
}

// QuoteFQN quotes each dot-separated segment of fqn with quote, skipping
// empty segments.
func QuoteFQN(fqn string, quote func(string) string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, quote(p))
	}
	return strings.Join(out, ".")
}

// BuildInsertSQL renders a parameterized INSERT with one placeholder per
// column, in column order.
func BuildInsertSQL(d Dialect, table string, columns []string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
		params[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		QuoteFQN(table, d.QuoteIdent),
		strings.Join(quoted, ", "),
		strings.Join(params, ", "),
	)
}

// BuildDropTableSQL renders DROP TABLE IF EXISTS for table.
func BuildDropTableSQL(d Dialect, table string) string {
	return "DROP TABLE IF EXISTS " + QuoteFQN(table, d.QuoteIdent)
}

// Placeholders returns n placeholders joined by ", ".
func Placeholders(d Dialect, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}
