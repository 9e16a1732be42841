// Package parser selects the row reader for a vendor file by its extension.
package parser

import (
	"context"
	"path/filepath"
	"strings"

	"vendorport/internal/datasource"
	"vendorport/internal/parser/csv"
	"vendorport/internal/parser/xlsx"
)

// Table is a header-first row source. Every method starts a fresh pass.
type Table interface {
	Headers(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, uint64, error)
	Each(ctx context.Context, fn func(line int, row []string) error) error
	Head(ctx context.Context, n int) ([][]string, error)
}

// Options configures text sources; spreadsheets ignore them.
type Options struct {
	Comma    rune
	Encoding string
	// OnError receives malformed CSV records.
	OnError func(line int, err error)
	// Sheet selects the XLSX worksheet.
	Sheet string
}

// Open returns the reader for name, which only contributes its extension:
// ".xlsx" is read as a workbook, anything else as delimited text.
func Open(src datasource.Source, name string, opt Options) Table {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return xlsx.New(src, xlsx.Options{Sheet: opt.Sheet})
	}
	return csv.New(src, csv.Options{Comma: opt.Comma, Encoding: opt.Encoding, OnError: opt.OnError})
}
