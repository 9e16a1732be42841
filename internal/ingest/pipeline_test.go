package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"vendorport/internal/mapping"
	"vendorport/internal/skiplog"
)

func numberedRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("%d: part %d", 1000+i, i), fmt.Sprintf("desc %d", i)}
	}
	return rows
}

var twoFields = mapping.FieldMapping{{Name: "590", Column: 0}, {Name: "description", Column: 1}}

func TestPercent(t *testing.T) {
	t.Parallel()
	tests := []struct{ processed, total, want int }{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1000, 2500, 40},
		{3, 3, 100},
		{7, 3, 100},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Percent(tc.processed, tc.total), "%d/%d", tc.processed, tc.total)
	}
}

func TestRunChunking(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rows, chunk int
	}{
		{0, 3},
		{1, 1000},
		{5, 5},
		{6, 3},
		{7, 3},
		{2500, 1000},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(fmt.Sprintf("%d_rows_chunk_%d", tc.rows, tc.chunk), func(t *testing.T) {
			t.Parallel()
			db := &fakeDB{}
			rec := &fakeRecorder{}
			events := &collect{}
			src := &fakeSource{rows: numberedRows(tc.rows)}

			p := New(db, rec, zaptest.NewLogger(t), Options{ChunkSize: tc.chunk})
			sum, err := p.Run(context.Background(), Request{
				Source:   src,
				Mapping:  twoFields,
				VendorID: 9,
				FileName: "parts.csv",
			}, events)
			require.NoError(t, err)

			wantCommits := (tc.rows + tc.chunk - 1) / tc.chunk
			assert.Equal(t, wantCommits, db.commits, "commits")
			assert.Equal(t, wantCommits, sum.Chunks)
			assert.Len(t, db.rows, tc.rows)
			assert.Equal(t, tc.rows, sum.Processed)
			assert.Zero(t, sum.Skipped)

			require.NotEmpty(t, events.events)
			progress := events.events[:len(events.events)-1]
			assert.Len(t, progress, tc.rows/tc.chunk, "one progress event per full chunk")
			last := 0
			for i, ev := range progress {
				assert.Equal(t, (i+1)*tc.chunk, ev.Processed)
				assert.Equal(t, tc.rows, ev.Total)
				assert.GreaterOrEqual(t, ev.Progress, last)
				assert.False(t, ev.Complete)
				assert.Empty(t, ev.Table)
				last = ev.Progress
			}

			final := events.events[len(events.events)-1]
			assert.Equal(t, Event{Progress: 100, Processed: tc.rows, Total: tc.rows, Complete: true, Table: sum.Table}, final)
			assert.True(t, strings.HasPrefix(sum.Table, "imported_data_"))

			require.Len(t, rec.got, 1)
			assert.Equal(t, Completion{
				VendorID:  9,
				Table:     sum.Table,
				FileName:  "parts.csv",
				Total:     tc.rows,
				Processed: tc.rows,
				Checksum:  "0000000000000abc",
			}, rec.got[0])
		})
	}
}

func TestRunCreatesTableFirst(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	_, err := New(db, nil, nil, Options{}).Run(context.Background(), Request{
		Source:  &fakeSource{rows: numberedRows(1)},
		Mapping: twoFields,
	}, nil)
	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS")
	assert.Contains(t, db.execs[0], `"590" TEXT`)
	assert.Contains(t, db.execs[0], `"description" TEXT`)
}

func TestRunNormalizesUnlessBypassed(t *testing.T) {
	t.Parallel()
	rows := [][]string{{"8060: Some part\r\nwith break", "x"}, {"", "y"}}

	for _, bypass := range []bool{false, true} {
		db := &fakeDB{}
		_, err := New(db, nil, nil, Options{}).Run(context.Background(), Request{
			Source:  &fakeSource{rows: rows},
			Mapping: twoFields,
			Bypass:  bypass,
		}, nil)
		require.NoError(t, err)
		require.Len(t, db.rows, 2)
		if bypass {
			assert.Equal(t, []any{"8060: Some part\r\nwith break", "x"}, db.rows[0])
		} else {
			assert.Equal(t, []any{"590-08060", "x"}, db.rows[0])
		}
		assert.Equal(t, []any{"", "y"}, db.rows[1])
	}
}

func TestRunSkipsFailingRows(t *testing.T) {
	t.Parallel()
	skipDir := t.TempDir()
	db := &fakeDB{failRow: func(args []any) bool { return args[1] == "bad" }}
	rec := &fakeRecorder{}
	events := &collect{}
	rows := [][]string{{"a", "ok"}, {"b", "bad"}, {"c", "ok"}, {"d", "ok"}, {"e", "bad"}}

	sum, err := New(db, rec, zaptest.NewLogger(t), Options{ChunkSize: 2, SkipDir: skipDir}).Run(
		context.Background(),
		Request{Source: &fakeSource{rows: rows}, Mapping: twoFields, Bypass: true},
		events,
	)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 2, db.commits, "chunk of two, then the drained remainder")
	assert.Equal(t, []any{"a", "ok"}, db.rows[0])
	assert.Equal(t, []any{"d", "ok"}, db.rows[2])

	require.Len(t, rec.got, 1)
	assert.Equal(t, 5, rec.got[0].Total)
	assert.Equal(t, 3, rec.got[0].Processed)

	final := events.events[len(events.events)-1]
	assert.Equal(t, 3, final.Processed)
	assert.Equal(t, 5, final.Total)
	assert.Equal(t, 100, final.Progress)

	require.Equal(t, filepath.Join(skipDir, sum.Table+"_skipped.csv"), sum.SkipLog)
	f, err := os.Open(sum.SkipLog)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		skiplog.Header,
		{"insert_failed", "3", "b", "b,bad"},
		{"insert_failed", "6", "e", "e,bad"},
	}, recs)
}

func TestRunKnownTotalSkipsCount(t *testing.T) {
	t.Parallel()
	src := &fakeSource{rows: numberedRows(4)}
	rec := &fakeRecorder{}
	events := &collect{}
	sum, err := New(&fakeDB{}, rec, nil, Options{ChunkSize: 2}).Run(context.Background(), Request{
		Source:  src,
		Mapping: twoFields,
		Total:   8,
	}, events)
	require.NoError(t, err)
	assert.Zero(t, src.counts)
	assert.Equal(t, 8, sum.Total)
	assert.Empty(t, sum.Checksum)
	assert.Equal(t, 25, events.events[0].Progress)
	assert.Equal(t, 50, events.events[1].Progress)
	assert.Empty(t, rec.got[0].Checksum)
}

func TestRunFatal(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	tests := []struct {
		name    string
		db      *fakeDB
		src     *fakeSource
		mapping mapping.FieldMapping
		rec     *fakeRecorder
		begins  int
	}{
		{"invalid mapping", &fakeDB{}, &fakeSource{}, mapping.FieldMapping{{Name: "", Column: 0}}, nil, 0},
		{"column collision", &fakeDB{}, &fakeSource{}, mapping.FieldMapping{{Name: "a b", Column: 0}, {Name: "a_b", Column: 1}}, nil, 0},
		{"create table", &fakeDB{execErr: boom}, &fakeSource{}, twoFields, nil, 0},
		{"unreadable source", &fakeDB{}, &fakeSource{countErr: boom}, twoFields, nil, 0},
		{"begin", &fakeDB{beginErr: boom}, &fakeSource{rows: numberedRows(1)}, twoFields, nil, 0},
		{"source fails mid-load", &fakeDB{}, &fakeSource{eachErr: boom}, twoFields, nil, 1},
		{"commit", &fakeDB{commitErr: boom}, &fakeSource{rows: numberedRows(3)}, twoFields, nil, 1},
		{"record", &fakeDB{}, &fakeSource{rows: numberedRows(1)}, twoFields, &fakeRecorder{err: boom}, 1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			events := &collect{}
			rm := &fakeRemover{}
			var rec Recorder
			if tc.rec != nil {
				rec = tc.rec
			}
			_, err := New(tc.db, rec, zaptest.NewLogger(t), Options{ChunkSize: 2}).Run(context.Background(), Request{
				Source:  tc.src,
				Mapping: tc.mapping,
				Cleanup: rm,
			}, events)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFatal)
			assert.Equal(t, tc.begins, tc.db.begins)

			require.NotEmpty(t, events.events)
			last := events.events[len(events.events)-1]
			assert.NotEmpty(t, last.Error)
			assert.False(t, last.Complete)
			for _, ev := range events.events[:len(events.events)-1] {
				assert.Empty(t, ev.Error)
			}
			assert.Equal(t, 1, rm.removed, "source removed on every exit path")
		})
	}
}

func TestRunCanceledAtChunkBoundary(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := &fakeDB{}
	rec := &fakeRecorder{}
	rm := &fakeRemover{}
	events := &collect{after: func(ev Event) {
		if ev.Processed == 2 && ev.Error == "" {
			cancel()
		}
	}}

	sum, err := New(db, rec, zaptest.NewLogger(t), Options{ChunkSize: 2}).Run(ctx, Request{
		Source:  &fakeSource{rows: numberedRows(5)},
		Mapping: twoFields,
		Cleanup: rm,
	}, events)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrFatal)
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 1, db.begins, "no transaction opened after the cancel")
	assert.Len(t, db.rows, 2)
	assert.Equal(t, 2, sum.Processed)
	assert.Empty(t, rec.got)
	assert.Equal(t, 1, rm.removed)
	assert.NotEmpty(t, events.events[len(events.events)-1].Error)
}

func TestRunCanceledMidChunkRollsBack(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := &fakeDB{}
	src := &fakeSource{rows: numberedRows(5), onRow: func(i int) {
		if i == 3 {
			cancel()
		}
	}}
	_, err := New(db, &fakeRecorder{}, nil, Options{ChunkSize: 2}).Run(ctx, Request{
		Source:  src,
		Mapping: twoFields,
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 1, db.rollbacks, "row 3 sat in the open chunk")
	assert.Len(t, db.rows, 2)
}

func TestChanEmitter(t *testing.T) {
	t.Parallel()
	ch := make(chan Event, 1)
	em := ChanEmitter(ch)
	require.NoError(t, em.Emit(context.Background(), Event{Progress: 10}))
	assert.Equal(t, 10, (<-ch).Progress)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := ChanEmitter(make(chan Event))
	assert.ErrorIs(t, blocked.Emit(ctx, Event{}), context.Canceled)
}
