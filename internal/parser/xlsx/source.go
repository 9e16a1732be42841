// Package xlsx reads the first worksheet of an uploaded Excel workbook as an
// ingestion row source. The first row is the header; entirely blank rows
// are skipped, as in the CSV reader.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/zeebo/xxh3"

	"vendorport/internal/datasource"
)

// ErrNoHeader is returned when the sheet has no header row.
var ErrNoHeader = errors.New("xlsx: sheet has no header row")

// Options configures the reader.
type Options struct {
	// Sheet selects the worksheet; the first sheet when empty.
	Sheet string
}

// Source is a header-first worksheet.
type Source struct {
	src datasource.Source
	opt Options
}

// New returns a Source reading from src.
func New(src datasource.Source, opt Options) *Source {
	return &Source{src: src, opt: opt}
}

// walk opens the workbook and calls fn for every non-blank row, header
// included, with its 1-based position.
func (s *Source) walk(ctx context.Context, tee io.Writer, fn func(line int, row []string) error) error {
	rc, err := s.src.Open(ctx)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if tee != nil {
		r = io.TeeReader(rc, tee)
	}
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheet := s.opt.Sheet
	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return ErrNoHeader
		}
		sheet = sheets[0]
	}
	rows, err := wb.Rows(sheet)
	if err != nil {
		return fmt.Errorf("sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	line := 0
	for rows.Next() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		cols, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("row %d: %w", line, err)
		}
		if blank(cols) {
			continue
		}
		if err := fn(line, cols); err != nil {
			return err
		}
	}
	return rows.Error()
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var errStop = errors.New("stop")

// Headers returns the header row.
func (s *Source) Headers(ctx context.Context) ([]string, error) {
	var header []string
	err := s.walk(ctx, nil, func(_ int, row []string) error {
		header = row
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if header == nil {
		return nil, ErrNoHeader
	}
	return header, nil
}

// Count returns the number of data rows and the xxh3 fingerprint of the
// workbook bytes.
func (s *Source) Count(ctx context.Context) (int, uint64, error) {
	h := xxh3.New()
	n := -1
	if err := s.walk(ctx, h, func(int, []string) error { n++; return nil }); err != nil {
		return 0, 0, err
	}
	if n < 0 {
		return 0, 0, ErrNoHeader
	}
	return n, h.Sum64(), nil
}

// Each calls fn for every data row in sheet order.
func (s *Source) Each(ctx context.Context, fn func(line int, row []string) error) error {
	seenHeader := false
	return s.walk(ctx, nil, func(line int, row []string) error {
		if !seenHeader {
			seenHeader = true
			return nil
		}
		return fn(line, row)
	})
}

// Head returns up to n data rows, for previews.
func (s *Source) Head(ctx context.Context, n int) ([][]string, error) {
	out := make([][]string, 0, n)
	err := s.Each(ctx, func(_ int, row []string) error {
		if len(out) >= n {
			return errStop
		}
		out = append(out, row)
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}
