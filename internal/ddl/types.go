package ddl

// ColumnDef describes a single column in a table definition. It intentionally
// uses simple, database-agnostic fields.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type, already mapped by a Dialect
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table name (FQN) and an ordered list of columns. The FQN
// may be dotted ("schema.table"); renderers quote each segment.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Logical column kinds understood by every Dialect.MapType.
const (
	KindSerial    = "serial"    // auto-incrementing integer surrogate key
	KindText      = "text"      // variable-length text
	KindInt       = "int"       // integer
	KindTimestamp = "timestamp" // point in time
)

// Dialect adapts the generic model to one SQL engine.
type Dialect interface {
	// Name is the storage kind, e.g. "postgres".
	Name() string
	// MapType maps a logical kind (KindSerial, KindText, ...) to a column type.
	MapType(kind string) string
	// QuoteIdent quotes a single identifier segment.
	QuoteIdent(id string) string
	// Placeholder returns the bind parameter for the 1-based position n.
	Placeholder(n int) string
	// BuildCreateTableSQL renders an idempotent CREATE TABLE statement.
	BuildCreateTableSQL(t TableDef) (string, error)
	// BuildInsertReturningSQL renders an INSERT that yields the generated
	// value of idColumn. When returnsRow is false the statement produces no
	// row and the caller reads the driver's last insert id instead.
	BuildInsertReturningSQL(table string, columns []string, idColumn string) (query string, returnsRow bool)
}
