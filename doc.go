// Package warehouse plans and runs scans of a remote SQL store that are
// shared by several consumers, and streams record batches into its tables.
//
// A shared scan is read once for all consumers. Each consumer pushes its
// filters; the reader keeps them as separate filter sets and builds a
// single query whose predicate is the OR of the sets, so a row reaches the
// scan if at least one consumer may want it. No filter is reported as
// handled by the source: every consumer re-applies its own filters to the
// rows it receives, and column pruning is not performed.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "database/sql"
//	    "fmt"
//
//	    "github.com/apache/arrow-go/v18/arrow"
//
//	    "github.com/hugr-lab/warehouse-go"
//	    "github.com/hugr-lab/warehouse-go/filter"
//	    "github.com/hugr-lab/warehouse-go/store"
//	)
//
//	func main() {
//	    db, _ := sql.Open("duckdb", "warehouse.db")
//	    schema := arrow.NewSchema([]arrow.Field{
//	        {Name: "colA", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
//	        {Name: "colB", Type: arrow.BinaryTypes.String, Nullable: true},
//	    }, nil)
//
//	    rdr, _ := warehouse.NewReader(warehouse.ReaderConfig{
//	        Options:  warehouse.Options{Table: "t", Database: "main", Dialect: filter.DialectDuckDB},
//	        Schema:   schema,
//	        Executor: store.New(db, nil),
//	    })
//	    defer rdr.Close()
//
//	    rdr.PushFilters([]filter.Filter{filter.Compare{Attribute: "colA", Op: filter.OpGreaterThan, Value: int64(5)}})
//	    rdr.PushFilters([]filter.Filter{filter.Equals{Attribute: "colB", Value: "x"}})
//
//	    batches, _ := rdr.ReadAll(context.Background())
//	    for _, b := range batches {
//	        fmt.Println(b.NumRows())
//	        b.Release()
//	    }
//	}
//
// # Planning cycles
//
// A planning cycle starts with the first expressible PushFilters call and
// ends with QueryString (or PlanSplits, which calls it). A cycle without
// expressible filters produces a query with no WHERE clause even when
// earlier cycles accumulated sets: one consumer without filters needs
// every row.
//
// # Logging
//
// Components take a *slog.Logger. When none is given the reader and the
// stream writer log to stderr at Options.LogLevel.
//
// # Memory Management
//
// Arrow uses manual reference counting. Callers release the RecordReaders
// returned by ReadSplit and the batches returned by ReadAll. DataWriter
// retains written batches until Commit or Abort.
package warehouse
