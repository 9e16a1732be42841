// Package ingest runs one vendor file into a freshly created table.
//
// A run moves through fixed phases: the target table is created, the source
// is counted (unless the caller already knows the total), rows are mapped and
// inserted in chunked transactions with a progress event per committed chunk,
// the partial chunk is drained and the run is finalized by removing the
// source and writing the ingestion record.
//
// Chunks are independent transactions. A run that fails part way keeps the
// chunks it already committed.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vendorport/internal/mapping"
	"vendorport/internal/metrics"
	"vendorport/internal/schema"
	"vendorport/internal/skiplog"
	"vendorport/internal/storage"
)

// DefaultChunkSize is the number of stored rows per transaction.
const DefaultChunkSize = 1000

// ErrFatal marks errors that aborted a run.
var ErrFatal = errors.New("ingest: fatal")

// RowSource yields data rows with the header already removed. Both methods
// start a fresh pass over the source.
type RowSource interface {
	// Count returns the number of data rows and a fingerprint of the bytes.
	Count(ctx context.Context) (int, uint64, error)
	// Each calls fn for every data row in source order. line is the 1-based
	// physical line (or sheet row) the record starts on.
	Each(ctx context.Context, fn func(line int, row []string) error) error
}

// Remover deletes the source once a run is over.
type Remover interface {
	Remove() error
}

// Completion is what a finished run reports to the Recorder.
type Completion struct {
	VendorID  int64
	Table     string
	FileName  string
	Total     int
	Processed int
	Checksum  string
}

// Recorder persists the ingestion record of a completed run.
type Recorder interface {
	Record(ctx context.Context, c Completion) (int64, error)
}

// Request describes one run.
type Request struct {
	Source   RowSource
	Mapping  mapping.FieldMapping
	Bypass   bool
	VendorID int64
	FileName string
	// Total, when > 0, is used as the row count and the counting pass is
	// skipped. The ingestion record then carries no checksum.
	Total int
	// Cleanup, if set, is removed when the run ends, whatever the outcome.
	Cleanup Remover
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Table     string
	Total     int
	Processed int
	Skipped   int
	Chunks    int
	Checksum  string
	SkipLog   string
	Elapsed   time.Duration
}

// Options configures a Pipeline.
type Options struct {
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
	// Schema controls table naming.
	Schema schema.Options
	// SkipDir receives "<table>_skipped.csv" for runs that skipped rows.
	// Empty disables the file; skipped rows are still logged.
	SkipDir string
}

// Pipeline runs ingestion requests against one store.
type Pipeline struct {
	db  storage.DB
	rec Recorder
	log *zap.Logger
	opt Options
}

// New returns a Pipeline writing into db. rec may be nil, in which case no
// ingestion record is written.
func New(db storage.DB, rec Recorder, log *zap.Logger, opt Options) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = DefaultChunkSize
	}
	return &Pipeline{db: db, rec: rec, log: log, opt: opt}
}

// run holds the per-run state.
type run struct {
	p     *Pipeline
	req   Request
	em    Emitter
	log   *zap.Logger
	tgt   schema.Target
	skips *skiplog.Log

	total     int
	checksum  string
	seen      int
	processed int
	chunks    int
	pending   int

	start     time.Time
	lastFlush time.Time
	lastTotal int
}

// Run executes req, emitting progress on em (which may be nil).
//
// Fatal failures emit one error event and return an error wrapping ErrFatal.
// Cancellation is honored between rows and at chunk boundaries: the open
// chunk is rolled back, no ingestion record is written and the returned
// error wraps ctx.Err().
func (p *Pipeline) Run(ctx context.Context, req Request, em Emitter) (Summary, error) {
	if em == nil {
		em = discard
	}
	r := &run{
		p:     p,
		req:   req,
		em:    em,
		start: time.Now(),
	}
	sum := Summary{RunID: uuid.NewString()}
	r.log = p.log.With(zap.String("run_id", sum.RunID))

	defer r.cleanup()

	err := r.execute(ctx)
	sum.Table = r.tgt.Table
	sum.Total = r.total
	sum.Processed = r.processed
	sum.Skipped = r.seen - r.processed
	sum.Chunks = r.chunks
	sum.Checksum = r.checksum
	sum.Elapsed = time.Since(r.start)
	if r.skips != nil {
		if cerr := r.skips.Close(); cerr != nil {
			r.log.Warn("close skip log", zap.Error(cerr))
		}
		if sum.Skipped > 0 {
			sum.SkipLog = r.skips.Path()
		}
	}
	if err != nil {
		r.fail(ctx, err)
		return sum, err
	}
	r.log.Info("run complete",
		zap.Int("total", sum.Total),
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("chunks", sum.Chunks),
		zap.Duration("elapsed", sum.Elapsed.Truncate(time.Millisecond)),
	)
	return sum, nil
}

func (r *run) execute(ctx context.Context) error {
	if r.req.Source == nil {
		return fmt.Errorf("%w: no row source", ErrFatal)
	}
	if err := r.req.Mapping.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	if err := r.init(ctx); err != nil {
		return err
	}
	if err := r.count(ctx); err != nil {
		return err
	}
	if err := r.load(ctx); err != nil {
		return err
	}
	return r.finalize(ctx)
}

// init synthesizes and creates the target table before the source is read.
func (r *run) init(ctx context.Context) error {
	started := time.Now()
	tgt, err := schema.Synthesize(r.p.db.Dialect(), r.req.Mapping.Names(), r.p.opt.Schema)
	if err == nil {
		r.tgt = tgt
		r.log = r.log.With(zap.String("table", tgt.Table))
		err = r.p.db.Exec(ctx, tgt.CreateSQL)
	}
	metrics.RecordStep("schema", err, time.Since(started))
	if err != nil {
		return fmt.Errorf("%w: create table: %w", ErrFatal, err)
	}
	if r.p.opt.SkipDir != "" {
		r.skips = skiplog.New(filepath.Join(r.p.opt.SkipDir, tgt.Table+"_skipped.csv"))
	}
	r.log.Info("table created", zap.Strings("columns", tgt.Columns))
	return nil
}

func (r *run) count(ctx context.Context) error {
	if r.req.Total > 0 {
		r.total = r.req.Total
		return nil
	}
	started := time.Now()
	n, sum, err := r.req.Source.Count(ctx)
	metrics.RecordStep("count", err, time.Since(started))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: read source: %w", ErrFatal, err)
	}
	r.total = n
	r.checksum = fmt.Sprintf("%016x", sum)
	r.log.Info("source counted", zap.Int("rows", n), zap.String("checksum", r.checksum))
	return nil
}

// load streams the source through chunked transactions.
func (r *run) load(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { metrics.RecordStep("load", err, time.Since(started)) }()

	tx, err := r.p.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrFatal, err)
	}
	defer func() {
		// tx is nil only after a failed re-begin.
		if err != nil && tx != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				r.log.Warn("rollback open chunk", zap.Error(rbErr))
			}
		}
	}()

	fields := r.req.Mapping.Names()
	r.lastFlush = time.Now()

	err = r.req.Source.Each(ctx, func(line int, row []string) error {
		r.seen++
		rec := mapping.MapRow(row, r.req.Mapping, r.req.Bypass)
		if insErr := tx.InsertRow(ctx, r.tgt.InsertSQL, rec.Values(fields)...); insErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.skip(line, row, rec, insErr)
			return nil
		}
		r.processed++
		r.pending++
		if r.pending < r.p.opt.ChunkSize {
			return nil
		}

		if cErr := r.commit(ctx, tx); cErr != nil {
			tx = nil
			return cErr
		}
		r.emit(ctx, Event{Progress: Percent(r.processed, r.total), Processed: r.processed, Total: r.total})
		if ctx.Err() != nil {
			tx = nil
			return ctx.Err()
		}
		next, bErr := r.p.db.BeginTx(ctx)
		if bErr != nil {
			tx = nil
			return fmt.Errorf("%w: begin: %w", ErrFatal, bErr)
		}
		tx = next
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrFatal) {
			return ctxErr
		}
		if errors.Is(err, ErrFatal) {
			return err
		}
		return fmt.Errorf("%w: read source: %w", ErrFatal, err)
	}

	// Drain. An open transaction holding no stored rows is released without
	// counting as a chunk.
	if r.pending > 0 {
		return r.commit(ctx, tx)
	}
	if rbErr := tx.Rollback(ctx); rbErr != nil {
		r.log.Debug("release empty chunk", zap.Error(rbErr))
	}
	return nil
}

func (r *run) commit(ctx context.Context, tx storage.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit chunk %d: %w", ErrFatal, r.chunks+1, err)
	}
	r.chunks++
	inserted := r.pending
	r.pending = 0
	metrics.RecordChunks(1)
	metrics.RecordRows(metrics.RowsInserted, int64(inserted))

	now := time.Now()
	sinceLast := now.Sub(r.lastFlush)
	rps := float64(0)
	if sinceLast > 0 {
		rps = float64(r.processed-r.lastTotal) / sinceLast.Seconds()
	}
	r.log.Info("chunk committed",
		zap.Int("batch", r.chunks),
		zap.Float64("rps", math.Round(rps)),
		zap.Int("inserted", inserted),
		zap.Int("total_inserted", r.processed),
		zap.Duration("elapsed", now.Sub(r.start).Truncate(time.Millisecond)),
		zap.Duration("since_last", sinceLast.Truncate(time.Millisecond)),
	)
	r.lastFlush = now
	r.lastTotal = r.processed
	return nil
}

func (r *run) skip(line int, row []string, rec *mapping.Record, err error) {
	metrics.RecordRows(metrics.RowsSkipped, 1)
	ident, _ := rec.Get(mapping.IdentifierField)
	r.log.Warn("row skipped",
		zap.Int("line", line),
		zap.String("code", storage.ErrorCode(err)),
		zap.Error(err),
	)
	if r.skips == nil {
		return
	}
	if lerr := r.skips.Add("insert_failed", line, ident, rawLine(row)); lerr != nil {
		r.log.Warn("write skip log", zap.Error(lerr))
	}
}

func (r *run) finalize(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { metrics.RecordStep("finalize", err, time.Since(started)) }()

	r.cleanup()
	if r.p.rec != nil {
		id, err := r.p.rec.Record(ctx, Completion{
			VendorID:  r.req.VendorID,
			Table:     r.tgt.Table,
			FileName:  r.req.FileName,
			Total:     r.total,
			Processed: r.processed,
			Checksum:  r.checksum,
		})
		if err != nil {
			return fmt.Errorf("%w: record import: %w", ErrFatal, err)
		}
		r.log.Debug("import recorded", zap.Int64("import_id", id))
	}
	r.emit(ctx, Event{
		Progress:  100,
		Processed: r.processed,
		Total:     r.total,
		Complete:  true,
		Table:     r.tgt.Table,
	})
	return nil
}

// cleanup removes the source once; later calls are no-ops.
func (r *run) cleanup() {
	if r.req.Cleanup == nil {
		return
	}
	c := r.req.Cleanup
	r.req.Cleanup = nil
	if err := c.Remove(); err != nil {
		r.log.Warn("remove source", zap.Error(err))
	}
}

// fail reports err as the run's single error event.
func (r *run) fail(ctx context.Context, err error) {
	r.log.Error("run failed",
		zap.Int("processed", r.processed),
		zap.Int("total", r.total),
		zap.Error(err),
	)
	r.emit(context.WithoutCancel(ctx), Event{
		Progress:  Percent(r.processed, r.total),
		Processed: r.processed,
		Total:     r.total,
		Error:     err.Error(),
	})
}

// emit delivers ev. A consumer that went away does not stop the load.
func (r *run) emit(ctx context.Context, ev Event) {
	if err := r.em.Emit(ctx, ev); err != nil {
		r.log.Debug("emit event", zap.Error(err))
	}
}

func rawLine(row []string) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(row)
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}
