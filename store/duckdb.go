// Package store runs synthesized queries against DuckDB and appends
// streamed record batches to DuckDB tables.
//
// Importing the package registers the duckdb driver:
//
//	db, _ := sql.Open("duckdb", "")
//	st := store.New(db, nil)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/warehouse-go/filter"
)

// DefaultBatchSize is the number of rows per record batch returned by Execute.
const DefaultBatchSize = 1024

// Options configures a DuckDB store.
type Options struct {
	// BatchSize caps rows per record batch. Defaults to DefaultBatchSize.
	BatchSize int

	// Allocator for record batches. Defaults to memory.DefaultAllocator.
	Allocator memory.Allocator

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DuckDB executes queries and appends records over a database/sql handle
// opened with the duckdb driver. It is safe for concurrent use.
type DuckDB struct {
	db        *sql.DB
	batchSize int
	alloc     memory.Allocator
	logger    *slog.Logger
}

// New wraps db. opts may be nil.
func New(db *sql.DB, opts *Options) *DuckDB {
	s := &DuckDB{
		db:        db,
		batchSize: DefaultBatchSize,
		alloc:     memory.DefaultAllocator,
		logger:    slog.Default(),
	}
	if opts != nil {
		if opts.BatchSize > 0 {
			s.batchSize = opts.BatchSize
		}
		if opts.Allocator != nil {
			s.alloc = opts.Allocator
		}
		if opts.Logger != nil {
			s.logger = opts.Logger
		}
	}
	return s
}

// DB returns the underlying handle.
func (s *DuckDB) DB() *sql.DB { return s.db }

// Execute runs query and returns its rows as record batches of schema.
// Result columns are matched to schema fields by position. A nil schema is
// resolved with DescribeSchema.
func (s *DuckDB) Execute(ctx context.Context, query string, schema *arrow.Schema) (array.RecordReader, error) {
	if schema == nil {
		var err error
		schema, err = s.DescribeSchema(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}
	if len(cols) != schema.NumFields() {
		return nil, fmt.Errorf("result has %d columns, schema has %d", len(cols), schema.NumFields())
	}

	builder := array.NewRecordBuilder(s.alloc, schema)
	defer builder.Release()

	var batches []arrow.RecordBatch
	release := func() {
		for _, b := range batches {
			b.Release()
		}
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			release()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			appendValue(builder.Field(i), v)
		}
		n++
		if n == s.batchSize {
			batches = append(batches, builder.NewRecordBatch())
			n = 0
		}
	}
	if err := rows.Err(); err != nil {
		release()
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	if n > 0 || len(batches) == 0 {
		batches = append(batches, builder.NewRecordBatch())
	}

	reader, err := array.NewRecordReader(schema, batches)
	// The reader retains the batches.
	release()
	if err != nil {
		return nil, fmt.Errorf("create record reader: %w", err)
	}

	s.logger.Debug("Query executed",
		"batches", len(batches),
		"query", query,
	)
	return reader, nil
}

// DescribeSchema returns the arrow schema of a query's result using
// DuckDB's DESCRIBE.
func (s *DuckDB) DescribeSchema(ctx context.Context, query string) (*arrow.Schema, error) {
	rows, err := s.db.QueryContext(ctx, "DESCRIBE "+query)
	if err != nil {
		return nil, fmt.Errorf("describe query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe query: %w", err)
	}

	var fields []arrow.Field
	for rows.Next() {
		// column_name, column_type, null, key, default, extra
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("describe query: %w", err)
		}
		if len(raw) < 2 {
			return nil, fmt.Errorf("describe query: unexpected %d columns", len(raw))
		}

		typ := raw[1].String
		field := arrow.Field{
			Name:     raw[0].String,
			Type:     duckdbTypeToArrow(typ),
			Nullable: len(raw) < 3 || !strings.EqualFold(raw[2].String, "NO"),
		}
		if isGeometryType(typ) {
			field = filter.NewGeometryField(field.Name, field.Nullable)
		}
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe query: %w", err)
	}
	return arrow.NewSchema(fields, nil), nil
}
