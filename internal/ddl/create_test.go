package ddl

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backtick is a minimal Dialect used to exercise the generic helpers.
type backtick struct{}

func (backtick) Name() string                { return "test" }
func (backtick) MapType(string) string       { return "TEXT" }
func (backtick) QuoteIdent(id string) string { return "`" + id + "`" }
func (backtick) Placeholder(n int) string    { return fmt.Sprintf("$%d", n) }
func (backtick) BuildCreateTableSQL(t TableDef) (string, error) {
	return Render(t, RenderOptions{Quote: backtick{}.QuoteIdent})
}
func (backtick) BuildInsertReturningSQL(table string, cols []string, _ string) (string, bool) {
	return BuildInsertSQL(backtick{}, table, cols), false
}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     TableDef
		opts    RenderOptions
		want    string
		wantErr string
	}{
		{
			name:    "empty FQN",
			def:     TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			wantErr: "table FQN must not be empty",
		},
		{
			name:    "no columns",
			def:     TableDef{FQN: "t"},
			opts:    RenderOptions{Dialect: "sqlite ddl"},
			wantErr: "sqlite ddl: at least one column is required",
		},
		{
			name:    "empty column name",
			def:     TableDef{FQN: "t", Columns: []ColumnDef{{SQLType: "INT"}}},
			wantErr: "column with empty name",
		},
		{
			name:    "missing type",
			def:     TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			wantErr: "missing SQLType",
		},
		{
			name: "unquoted default head",
			def: TableDef{FQN: "t", Columns: []ColumnDef{
				{Name: "id", SQLType: "INT", PrimaryKey: true},
				{Name: "name", SQLType: "TEXT", Nullable: true},
			}},
			want: "CREATE TABLE t (\n  id INT NOT NULL,\n  name TEXT,\n  PRIMARY KEY (id)\n);",
		},
		{
			name: "quoted with head, tail and default",
			def: TableDef{FQN: "main.events", Columns: []ColumnDef{
				{Name: "at", SQLType: "TIMESTAMP", Default: "CURRENT_TIMESTAMP"},
			}},
			opts: RenderOptions{
				Quote: func(s string) string { return `"` + s + `"` },
				Head:  "CREATE TABLE IF NOT EXISTS",
				Tail:  " STRICT",
			},
			want: "CREATE TABLE IF NOT EXISTS \"main\".\"events\" (\n  \"at\" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP\n) STRICT;",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Render(tc.def, tc.opts)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestQuoteFQN(t *testing.T) {
	t.Parallel()
	q := backtick{}.QuoteIdent
	assert.Equal(t, "`a`", QuoteFQN("a", q))
	assert.Equal(t, "`a`.`b`", QuoteFQN("a.b", q))
	assert.Equal(t, "`a`.`b`", QuoteFQN(" a . .b ", q))
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()
	got := BuildInsertSQL(backtick{}, "imported_data_x", []string{"590", "original_description", "price"})
	assert.Equal(t,
		"INSERT INTO `imported_data_x` (`590`, `original_description`, `price`) VALUES ($1, $2, $3)",
		got)
	assert.Equal(t, 3, strings.Count(Placeholders(backtick{}, 3), "$"))
}

func TestBuildDropTableSQL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "DROP TABLE IF EXISTS `t`", BuildDropTableSQL(backtick{}, "t"))
}
