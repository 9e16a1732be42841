package mapping

import (
	"encoding/json"
	"strings"

	"vendorport/internal/extract"
)

// Record is an ordered field → value map produced by MapRow.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord returns an empty record with room for n fields.
func NewRecord(n int) *Record {
	return &Record{keys: make([]string, 0, n), values: make(map[string]string, n)}
}

// Set stores v under k, keeping the position of an existing key.
func (r *Record) Set(k, v string) {
	if _, ok := r.values[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.values[k] = v
}

// Get returns the value for k and whether it is present.
func (r *Record) Get(k string) (string, bool) {
	v, ok := r.values[k]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Values returns the values of fields in the given order, as insert
// arguments. Missing fields yield "".
func (r *Record) Values(fields []string) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = r.values[f]
	}
	return out
}

// MarshalJSON renders the record as an object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

var newlineCollapser = strings.NewReplacer("\r", " ", "\n", " ")

// CleanIdentifier replaces carriage returns and newlines with spaces and
// trims the result.
func CleanIdentifier(v string) string {
	return strings.TrimSpace(newlineCollapser.Replace(v))
}

// MapRow applies m to row. Out-of-range columns read as "". When the
// identifier field is mapped and bypass is false, its non-empty value is
// normalized and the cleaned input is kept under OriginalDescriptionField.
func MapRow(row []string, m FieldMapping, bypass bool) *Record {
	rec := NewRecord(len(m) + 1)
	for _, f := range m {
		var value string
		if f.Column >= 0 && f.Column < len(row) {
			value = row[f.Column]
		}

		if f.IsIdentifier() && value != "" && !bypass {
			clean := CleanIdentifier(value)
			rec.Set(f.Name, extract.Normalize(clean).Extracted)
			rec.Set(OriginalDescriptionField, clean)
			continue
		}
		rec.Set(f.Name, value)
	}

	if !bypass && m.HasIdentifier() {
		if _, ok := rec.Get(OriginalDescriptionField); !ok {
			rec.Set(OriginalDescriptionField, "")
		}
	}
	return rec
}

// DefaultPreviewRows is the number of rows shown on the preview screen.
const DefaultPreviewRows = 3

// Preview maps at most n rows (DefaultPreviewRows when n <= 0).
func Preview(rows [][]string, m FieldMapping, bypass bool, n int) []*Record {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, MapRow(row, m, bypass))
	}
	return out
}
