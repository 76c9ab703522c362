package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugr-lab/warehouse-go/filter"
	"github.com/hugr-lab/warehouse-go/internal/recovery"
	"github.com/hugr-lab/warehouse-go/internal/serialize"
	"github.com/hugr-lab/warehouse-go/pushdown"
)

// ErrNoExecutor is returned when reading from a Reader created without an
// Executor.
var ErrNoExecutor = errors.New("reader has no executor")

// ErrForeignSplit is returned when decoding a split ticket planned by
// another reader.
var ErrForeignSplit = errors.New("split ticket belongs to another reader")

// Executor runs a query against the remote store.
// *store.DuckDB implements Executor.
type Executor interface {
	Execute(ctx context.Context, query string, schema *arrow.Schema) (array.RecordReader, error)
}

// ReaderConfig contains configuration for a Reader.
type ReaderConfig struct {
	// Options selects the table or query to scan.
	// REQUIRED: exactly one of Options.Table and Options.Query.
	Options Options

	// Schema is the full schema of the scanned relation.
	// REQUIRED.
	Schema *arrow.Schema

	// Executor runs split queries.
	// OPTIONAL: without it the reader can only plan.
	Executor Executor

	// EncoderOptions maps schema columns to remote columns or expressions.
	// OPTIONAL.
	EncoderOptions *filter.EncoderOptions

	// Alias names the sub-query of every synthesized query.
	// OPTIONAL: defaults to pushdown.RandomAlias.
	Alias pushdown.AliasFunc

	// MaxParallel bounds concurrent split reads in ReadAll.
	// OPTIONAL: 0 means one goroutine per split.
	MaxParallel int

	// Logger for planning and read events.
	// OPTIONAL: defaults to a text logger on stderr.
	Logger *slog.Logger

	// LogLevel for the default logger. Overrides Options.LogLevel.
	// OPTIONAL.
	LogLevel *slog.Level
}

// Reader plans and reads a scan whose filters come from several consumers
// that share it. Every call to PushFilters adds the consumer's filters as
// one disjunct of the scan predicate, so the rows read satisfy at least
// one consumer; consumers re-apply their own filters to what they receive.
//
// Planning methods are not safe for concurrent use.
type Reader struct {
	jobID       string
	opts        Options
	schema      *arrow.Schema
	exec        Executor
	encoder     filter.Encoder
	alias       pushdown.AliasFunc
	acc         *pushdown.Accumulator
	synth       *pushdown.Synthesizer
	codec       *serialize.Codec
	maxParallel int
	logger      *slog.Logger
}

// NewReader creates a reader. Close releases it.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Schema == nil {
		return nil, fmt.Errorf("%w: schema is required", ErrInvalidConfig)
	}
	if err := cfg.Options.validateRead(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Options.applyDefaults()
	if col := cfg.Options.SplitColumn; col != "" {
		if _, ok := cfg.Schema.FieldsByName(col); !ok {
			return nil, fmt.Errorf("%w: split column %q not in schema", ErrInvalidConfig, col)
		}
	}

	level := cfg.Options.SlogLevel()
	if cfg.LogLevel != nil {
		level = *cfg.LogLevel
	}
	logger := newLogger(cfg.Logger, level)

	alias := cfg.Alias
	if alias == nil {
		alias = pushdown.RandomAlias
	}

	codec, err := serialize.NewCodec()
	if err != nil {
		return nil, err
	}

	encoder := filter.NewSQLEncoder(cfg.Options.Dialect, cfg.EncoderOptions)

	jobID := uuid.NewString()
	logger = logger.With("job_id", jobID)

	r := &Reader{
		jobID:       jobID,
		opts:        cfg.Options,
		schema:      cfg.Schema,
		exec:        cfg.Executor,
		encoder:     encoder,
		alias:       alias,
		acc:         pushdown.NewAccumulator(encoder, logger),
		synth:       pushdown.NewSynthesizer(encoder, alias, logger),
		codec:       codec,
		maxParallel: cfg.MaxParallel,
		logger:      logger,
	}

	logger.Debug("Reader created",
		"statement_type", cfg.Options.StatementType().String(),
		"dialect", string(cfg.Options.Dialect),
		"columns", cfg.Schema.NumFields(),
	)
	return r, nil
}

// Close releases the reader's split codec.
func (r *Reader) Close() error {
	return r.codec.Close()
}

// PushFilters records the filters one consumer wants applied and returns
// all of them, since none is guaranteed to be fully applied at the source.
func (r *Reader) PushFilters(filters []filter.Filter) []filter.Filter {
	return r.acc.Propose(filters, r.schema)
}

// PushedFilters reports no filter as handled by the source.
func (r *Reader) PushedFilters() []filter.Filter {
	return []filter.Filter{}
}

// PruneColumns ignores required and keeps the full schema. A shared scan
// serves consumers with different projections, so it always reads every
// column.
func (r *Reader) PruneColumns(required *arrow.Schema) {
	if required != nil && required.NumFields() != r.schema.NumFields() {
		r.logger.Debug("Column pruning ignored",
			"required", required.NumFields(),
			"columns", r.schema.NumFields(),
		)
	}
}

// ReadSchema returns the full schema.
func (r *Reader) ReadSchema() *arrow.Schema {
	return r.schema
}

// FilterSets returns the number of filter sets accumulated so far.
func (r *Reader) FilterSets() int {
	return r.acc.Len()
}

// QueryString builds the query for the current planning cycle and ends it.
func (r *Reader) QueryString() (string, error) {
	return r.synth.Synthesize(r.acc, r.opts.Descriptor(), r.schema, pushdown.FullProjection(r.schema))
}

// PlanSplits builds the query once and fans it out into splits over
// Options.SplitColumn.
func (r *Reader) PlanSplits(ctx context.Context) ([]Split, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, err := r.QueryString()
	if err != nil {
		return nil, err
	}

	count := 1
	if r.opts.SplitColumn != "" && r.opts.SplitCount > 1 {
		count = r.opts.SplitCount
	}

	queries := r.splitQueries(query, r.opts.SplitColumn, count)
	splits := make([]Split, len(queries))
	for i, q := range queries {
		if splits[i], err = r.newSplit(i, len(queries), q); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("Splits planned", "splits", len(splits))
	return splits, nil
}

// ReadSplit runs the query of one split.
func (r *Reader) ReadSplit(ctx context.Context, split Split) (array.RecordReader, error) {
	if r.exec == nil {
		return nil, ErrNoExecutor
	}
	rdr, err := recovery.RecoverToValue(r.logger, "ReadSplit", func() (array.RecordReader, error) {
		return r.exec.Execute(ctx, split.Query, r.schema)
	})
	if err != nil {
		return nil, fmt.Errorf("read split %d of %d: %w", split.Index, split.Count, err)
	}
	return rdr, nil
}

// ReadAll plans the scan and reads every split concurrently. Batches are
// returned in split order; the caller releases them.
func (r *Reader) ReadAll(ctx context.Context) ([]arrow.RecordBatch, error) {
	splits, err := r.PlanSplits(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]arrow.RecordBatch, len(splits))
	g, gctx := errgroup.WithContext(ctx)
	if r.maxParallel > 0 {
		g.SetLimit(r.maxParallel)
	}
	for i, split := range splits {
		g.Go(func() error {
			batches, err := r.drain(gctx, split)
			results[i] = batches
			return err
		})
	}
	err = g.Wait()

	var out []arrow.RecordBatch
	for _, batches := range results {
		out = append(out, batches...)
	}
	if err != nil {
		releaseAll(out)
		return nil, err
	}
	return out, nil
}

// drain reads one split to completion, retaining its batches.
func (r *Reader) drain(ctx context.Context, split Split) ([]arrow.RecordBatch, error) {
	rdr, err := r.ReadSplit(ctx, split)
	if err != nil {
		return nil, err
	}
	defer rdr.Release()

	var batches []arrow.RecordBatch
	for rdr.Next() {
		if err := ctx.Err(); err != nil {
			return batches, err
		}
		rec := rdr.RecordBatch()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := rdr.Err(); err != nil {
		return batches, fmt.Errorf("read split %d of %d: %w", split.Index, split.Count, err)
	}
	return batches, nil
}

func releaseAll(batches []arrow.RecordBatch) {
	for _, b := range batches {
		b.Release()
	}
}
