package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/warehouse-go/filter"
	"github.com/hugr-lab/warehouse-go/store"
)

// TestMemoryLeaksInReadAll checks that every batch of a split scan is
// released once the caller releases the result.
func TestMemoryLeaksInReadAll(t *testing.T) {
	allocator := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer allocator.AssertSize(t, 0)

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("CREATE TABLE t AS SELECT i AS colA, 'v' || i AS colB FROM range(5000) r(i)"); err != nil {
		t.Fatalf("create fixture: %v", err)
	}

	opts := duckdbTable()
	opts.SplitColumn = "colA"
	opts.SplitCount = 4
	r, err := NewReader(ReaderConfig{
		Options:     opts,
		Schema:      readerSchema,
		Executor:    store.New(db, &store.Options{Allocator: allocator, BatchSize: 256, Logger: discardLogger}),
		MaxParallel: 1,
		Logger:      discardLogger,
	})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	r.PushFilters([]filter.Filter{filter.Compare{Attribute: "colA", Op: filter.OpGreaterThanOrEqual, Value: int64(100)}})
	batches, err := r.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	var rows int64
	for _, b := range batches {
		rows += b.NumRows()
	}
	releaseAll(batches)
	if rows != 4900 {
		t.Errorf("expected 4900 rows, got %d", rows)
	}
}

// failingBucketExecutor fails the split whose hash bucket is 1.
type failingBucketExecutor struct {
	alloc memory.Allocator
}

func (e failingBucketExecutor) Execute(_ context.Context, query string, schema *arrow.Schema) (array.RecordReader, error) {
	if strings.HasSuffix(query, "= 1") {
		return nil, errors.New("bucket unavailable")
	}
	builder := array.NewRecordBuilder(e.alloc, schema)
	defer builder.Release()
	builder.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	builder.Field(1).(*array.StringBuilder).AppendValues([]string{"a", "b", "c"}, nil)
	record := builder.NewRecordBatch()
	defer record.Release()
	return array.NewRecordReader(schema, []arrow.RecordBatch{record})
}

// TestNoMemoryLeaksWithErrors checks that batches of successful splits are
// released when another split fails.
func TestNoMemoryLeaksWithErrors(t *testing.T) {
	allocator := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer allocator.AssertSize(t, 0)

	opts := duckdbTable()
	opts.SplitColumn = "colA"
	opts.SplitCount = 3
	r, err := NewReader(ReaderConfig{
		Options:  opts,
		Schema:   readerSchema,
		Executor: failingBucketExecutor{alloc: allocator},
		Logger:   discardLogger,
	})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.ReadAll(context.Background()); err == nil {
		t.Fatal("expected ReadAll to fail")
	}
}
