package ingest

import (
	"context"
	"errors"
	"sync"

	"vendorport/internal/ddl"
	"vendorport/internal/storage"
	sqliteddl "vendorport/internal/storage/sqlite/ddl"
)

// fakeDB records statements and keeps committed rows in memory.
type fakeDB struct {
	mu sync.Mutex

	execErr   error
	beginErr  error
	commitErr error
	// failRow rejects single inserts.
	failRow func(args []any) bool

	execs     []string
	begins    int
	commits   int
	rollbacks int
	rows      [][]any
}

var _ storage.DB = (*fakeDB)(nil)

func (d *fakeDB) Exec(_ context.Context, q string, _ ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, q)
	return d.execErr
}

func (d *fakeDB) Query(context.Context, string, ...any) (storage.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) InsertReturning(context.Context, string, string, []string, ...any) (int64, error) {
	return 0, errors.New("not implemented")
}

func (d *fakeDB) BeginTx(context.Context) (storage.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.begins++
	return &fakeTx{db: d}, nil
}

func (d *fakeDB) Dialect() ddl.Dialect        { return sqliteddl.Dialect{} }
func (d *fakeDB) Close(context.Context) error { return nil }

type fakeTx struct {
	db      *fakeDB
	pending [][]any
}

func (t *fakeTx) Exec(context.Context, string, ...any) error { return nil }

func (t *fakeTx) InsertRow(_ context.Context, _ string, args ...any) error {
	if t.db.failRow != nil && t.db.failRow(args) {
		return &storage.CodedError{Code: "1406", Err: errors.New("data too long")}
	}
	t.pending = append(t.pending, args)
	return nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.commitErr != nil {
		return t.db.commitErr
	}
	t.db.commits++
	t.db.rows = append(t.db.rows, t.pending...)
	t.pending = nil
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	t.pending = nil
	return nil
}

// fakeSource serves rows from memory, numbering them from line 2.
type fakeSource struct {
	rows     [][]string
	countErr error
	eachErr  error
	counts   int
	// onRow runs before row i is yielded.
	onRow func(i int)
}

func (s *fakeSource) Count(context.Context) (int, uint64, error) {
	s.counts++
	if s.countErr != nil {
		return 0, 0, s.countErr
	}
	return len(s.rows), 0xabc, nil
}

func (s *fakeSource) Each(ctx context.Context, fn func(int, []string) error) error {
	if s.eachErr != nil {
		return s.eachErr
	}
	for i, row := range s.rows {
		if s.onRow != nil {
			s.onRow(i)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i+2, row); err != nil {
			return err
		}
	}
	return nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	got  []Completion
	err  error
	next int64
}

func (r *fakeRecorder) Record(_ context.Context, c Completion) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.got = append(r.got, c)
	r.next++
	return r.next, nil
}

type fakeRemover struct{ removed int }

func (f *fakeRemover) Remove() error { f.removed++; return nil }

// collect records every emitted event.
type collect struct {
	mu     sync.Mutex
	events []Event
	after  func(Event)
}

func (c *collect) Emit(_ context.Context, ev Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	if c.after != nil {
		c.after(ev)
	}
	return nil
}
