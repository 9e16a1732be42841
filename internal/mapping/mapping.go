// Package mapping applies a user-supplied field → column mapping to raw rows.
//
// A FieldMapping is ordered: the order fields were mapped in is the order
// columns are created in and the order insert arguments are produced in.
package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// IdentifierField is the canonical field subject to code normalization.
	IdentifierField = "590"
	// OriginalDescriptionField carries the cleaned pre-normalization text.
	OriginalDescriptionField = "original_description"
)

// ErrInvalidMapping is returned for mappings that cannot be applied.
var ErrInvalidMapping = errors.New("invalid field mapping")

// Field binds a canonical field name to a zero-based source column.
type Field struct {
	Name   string `json:"name"`
	Column int    `json:"column"`
}

// IsIdentifier reports whether f is the identifier field. Surrounding
// whitespace in the name is ignored.
func (f Field) IsIdentifier() bool {
	return strings.TrimSpace(f.Name) == IdentifierField
}

// FieldMapping is an ordered list of field bindings.
type FieldMapping []Field

// Names returns the field names in mapping order.
func (m FieldMapping) Names() []string {
	out := make([]string, len(m))
	for i, f := range m {
		out[i] = f.Name
	}
	return out
}

// HasIdentifier reports whether the identifier field is mapped.
func (m FieldMapping) HasIdentifier() bool {
	for _, f := range m {
		if f.IsIdentifier() {
			return true
		}
	}
	return false
}

// Validate checks names and indices. Reusing one source column for several
// fields is allowed.
func (m FieldMapping) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: no fields mapped", ErrInvalidMapping)
	}
	seen := make(map[string]struct{}, len(m))
	identifiers := 0
	for i, f := range m {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("%w: field %d has an empty name", ErrInvalidMapping, i)
		}
		if f.Column < 0 {
			return fmt.Errorf("%w: field %q has negative column %d", ErrInvalidMapping, f.Name, f.Column)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: field %q mapped twice", ErrInvalidMapping, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.IsIdentifier() {
			identifiers++
		}
	}
	if identifiers > 1 {
		return fmt.Errorf("%w: identifier field %q mapped %d times", ErrInvalidMapping, IdentifierField, identifiers)
	}
	if _, clash := seen[OriginalDescriptionField]; clash && identifiers > 0 {
		return fmt.Errorf("%w: field name %q is reserved", ErrInvalidMapping, OriginalDescriptionField)
	}
	return nil
}

// UnmarshalJSON accepts either an array of {"name","column"} objects or an
// object {"field": index, ...}. Object key order is preserved and indices may
// be numbers or numeric strings, as posted by web forms.
func (m *FieldMapping) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*m = nil
		return nil
	}
	if trimmed[0] == '[' {
		var fields []Field
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
		}
		*m = fields
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected object or array", ErrInvalidMapping)
	}

	var out FieldMapping
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
		}
		name, _ := keyTok.(string)

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidMapping, name, err)
		}
		col, err := coerceIndex(raw)
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidMapping, name, err)
		}
		out = append(out, Field{Name: name, Column: col})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	*m = out
	return nil
}

// MarshalJSON renders the mapping as an ordered object.
func (m FieldMapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(f.Column))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes a JSON mapping and validates it.
func Parse(b []byte) (FieldMapping, error) {
	var m FieldMapping
	if err := json.Unmarshal(b, &m); err != nil {
		if errors.Is(err, ErrInvalidMapping) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// FormValue is one posted form field, kept in the order it arrived.
type FormValue struct {
	Key   string
	Value string
}

// FormKey reports whether key has the "mapping[<field>]" shape and returns
// the field name.
func FormKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "mapping[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	return key[len("mapping[") : len(key)-1], true
}

// FromForm collects "mapping[<field>]=<index>" values in the order they
// were posted. Other keys are ignored and empty index values are skipped
// (unmapped select boxes).
func FromForm(values []FormValue) (FieldMapping, error) {
	var out FieldMapping
	for _, v := range values {
		name, ok := FormKey(v.Key)
		if !ok || strings.TrimSpace(v.Value) == "" {
			continue
		}
		col, err := coerceIndex(v.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidMapping, name, err)
		}
		out = append(out, Field{Name: name, Column: col})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func coerceIndex(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return 0, fmt.Errorf("column index %q is not an integer", t.String())
		}
		return n, nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("column index %q is not an integer", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported column index type %T", v)
	}
}
