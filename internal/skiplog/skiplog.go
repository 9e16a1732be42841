// Package skiplog records rows an ingestion run could not store, one CSV line
// per skipped row, so an operator can fix and re-import them.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Header is the first line of every skip log.
var Header = []string{"reason", "line_number", "field", "raw_line"}

// Log appends skipped rows to a CSV file. The file is created on the first
// Add, so clean runs leave nothing behind. Safe for concurrent use.
type Log struct {
	path string

	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	reasons map[string]int
}

// New returns a Log writing to path.
func New(path string) *Log {
	return &Log{path: path, reasons: make(map[string]int)}
}

// Path returns the file the log writes to.
func (l *Log) Path() string { return l.path }

func (l *Log) open() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", filepath.Dir(l.path), err)
	}
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	l.f = f
	l.w = csv.NewWriter(f)
	return l.w.Write(Header)
}

// Add records one skipped row.
func (l *Log) Add(reason string, lineNum int, field, raw string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		if err := l.open(); err != nil {
			return err
		}
	}
	l.reasons[reason]++
	return l.w.Write([]string{reason, strconv.Itoa(lineNum), field, raw})
}

// Reasons returns a copy of the per-reason counts.
func (l *Log) Reasons() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		out[k] = v
	}
	return out
}

// Close flushes and closes the file, if one was created.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	l.w.Flush()
	err := l.w.Error()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.w, l.f = nil, nil
	return err
}
