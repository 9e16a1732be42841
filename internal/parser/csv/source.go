// Package csv reads uploaded CSV files as an ingestion row source.
//
// The file is read in full passes: one to count rows (and fingerprint the
// bytes), one to load them. Each pass reopens the underlying source, so
// memory stays bounded regardless of file size.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"

	"vendorport/internal/datasource"
)

// ErrNoHeader is returned when the file has no header row.
var ErrNoHeader = errors.New("csv: file has no header row")

// Options configures parsing. All fields are optional.
type Options struct {
	// Comma is the field delimiter; ',' when zero.
	Comma rune
	// Encoding names the source charset; see Encodings.
	Encoding string
	// OnError receives malformed records, which are skipped by Each but still
	// counted by Count.
	OnError func(line int, err error)
}

// Source is a header-first CSV file.
type Source struct {
	src datasource.Source
	opt Options
}

// New returns a Source reading from src.
func New(src datasource.Source, opt Options) *Source {
	return &Source{src: src, opt: opt}
}

// pass opens the source and positions a reader after the header row.
func (s *Source) pass(ctx context.Context, tee io.Writer) (*csv.Reader, []string, io.Closer, error) {
	rc, err := s.src.Open(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open source: %w", err)
	}
	var raw io.Reader = rc
	if tee != nil {
		raw = io.TeeReader(rc, tee)
	}
	r, err := decode(raw, s.opt.Encoding)
	if err != nil {
		rc.Close()
		return nil, nil, nil, err
	}

	cr := csv.NewReader(r)
	if s.opt.Comma != 0 {
		cr.Comma = s.opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		rc.Close()
		return nil, nil, nil, ErrNoHeader
	}
	if err != nil {
		rc.Close()
		return nil, nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	return cr, header, rc, nil
}

// Headers returns the header row.
func (s *Source) Headers(ctx context.Context) ([]string, error) {
	_, header, c, err := s.pass(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return header, nil
}

// Count returns the number of data rows (header excluded) and the xxh3
// fingerprint of the whole file.
func (s *Source) Count(ctx context.Context) (int, uint64, error) {
	h := xxh3.New()
	cr, _, c, err := s.pass(ctx, h)
	if err != nil {
		return 0, 0, err
	}
	defer c.Close()

	n := 0
	for {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return n, 0, err
			}
		}
		_, err := cr.Read()
		if err == io.EOF {
			break
		}
		var pe *csv.ParseError
		if err != nil && !errors.As(err, &pe) {
			return n, 0, fmt.Errorf("count rows: %w", err)
		}
		n++
	}
	return n, h.Sum64(), nil
}

// Each calls fn for every data row in file order. line is the 1-based line
// the record starts on. Iteration stops at the first error from fn or ctx.
func (s *Source) Each(ctx context.Context, fn func(line int, row []string) error) error {
	cr, _, c, err := s.pass(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return fmt.Errorf("read row: %w", err)
			}
			if s.opt.OnError != nil {
				s.opt.OnError(pe.StartLine, fmt.Errorf("parse: %w", err))
			}
			continue
		}
		line, _ := cr.FieldPos(0)
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

// Head returns up to n data rows, for previews.
func (s *Source) Head(ctx context.Context, n int) ([][]string, error) {
	errStop := errors.New("stop")
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
