// Package cli implements the warehouse command-line interface.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cobra"

	"github.com/hugr-lab/warehouse-go"
	"github.com/hugr-lab/warehouse-go/filter"
	"github.com/hugr-lab/warehouse-go/store"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// flags holds the values of the persistent flags.
type flags struct {
	config      string
	db          string
	database    string
	table       string
	query       string
	dialect     string
	splitColumn string
	splits      int
	columns     string
	logLevel    string
	filters     []string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "warehouse",
		Short:         "Plan and run shared warehouse scans",
		Long:          "Combines the filters of several consumers of one scan into a single query and runs it against DuckDB.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "YAML options file")
	pf.StringVar(&f.db, "db", "", "DuckDB database path (empty for in-memory)")
	pf.StringVar(&f.database, "database", "", "Database of --table")
	pf.StringVar(&f.table, "table", "", "Table to scan")
	pf.StringVar(&f.query, "query", "", "Query to scan instead of a table")
	pf.StringVar(&f.dialect, "dialect", "", "SQL dialect (hive, duckdb)")
	pf.StringVar(&f.splitColumn, "split-column", "", "Column whose hash spreads the scan over splits")
	pf.IntVar(&f.splits, "splits", 0, "Number of splits")
	pf.StringVar(&f.columns, "columns", "", "Schema as \"name TYPE, ...\" (default: DESCRIBE the scanned relation)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringArrayVar(&f.filters, "filter", nil, "JSON array of one consumer's filters (repeatable)")

	rootCmd.AddCommand(newPlanCmd(f))
	rootCmd.AddCommand(newScanCmd(f))
	return rootCmd
}

// options merges the config file with the flags set on the command line.
func (f *flags) options(cmd *cobra.Command) (warehouse.Options, error) {
	var (
		opts warehouse.Options
		err  error
	)
	if f.config != "" {
		opts, err = warehouse.LoadOptionsFile(f.config)
	} else {
		opts, err = warehouse.ParseOptions(nil)
	}
	if err != nil {
		return warehouse.Options{}, err
	}

	changed := cmd.Flags().Changed
	if changed("database") {
		opts.Database = f.database
	}
	if changed("table") {
		opts.Table = f.table
	}
	if changed("query") {
		opts.Query = f.query
	}
	if changed("dialect") {
		if opts.Dialect, err = filter.ParseDialect(f.dialect); err != nil {
			return warehouse.Options{}, fmt.Errorf("%w: %v", warehouse.ErrInvalidConfig, err)
		}
	}
	if changed("split-column") {
		opts.SplitColumn = f.splitColumn
	}
	if changed("splits") {
		opts.SplitCount = f.splits
	}
	if changed("log-level") {
		opts.LogLevel = f.logLevel
	}
	return opts, nil
}

func (f *flags) consumers() ([][]filter.Filter, error) {
	out := make([][]filter.Filter, 0, len(f.filters))
	for i, raw := range f.filters {
		fs, err := filter.Parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("--filter #%d: %w", i+1, err)
		}
		out = append(out, fs)
	}
	return out, nil
}

// session is an opened store plus the reader planned on it.
type session struct {
	db     *sql.DB
	reader *warehouse.Reader
}

func (s *session) Close() {
	s.reader.Close()
	s.db.Close()
}

// open resolves options, opens DuckDB, builds the reader and pushes every
// consumer's filters.
func (f *flags) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	opts, err := f.options(cmd)
	if err != nil {
		return nil, err
	}
	consumers, err := f.consumers()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: opts.SlogLevel(),
	}))

	db, err := sql.Open("duckdb", f.db)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	st := store.New(db, &store.Options{Logger: logger})

	schema, err := f.schema(ctx, st, opts)
	if err != nil {
		db.Close()
		return nil, err
	}

	reader, err := warehouse.NewReader(warehouse.ReaderConfig{
		Options:  opts,
		Schema:   schema,
		Executor: st,
		Logger:   logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, c := range consumers {
		reader.PushFilters(c)
	}
	return &session{db: db, reader: reader}, nil
}

func (f *flags) schema(ctx context.Context, st *store.DuckDB, opts warehouse.Options) (*arrow.Schema, error) {
	if f.columns != "" {
		return store.ParseColumns(f.columns)
	}
	if opts.Table == "" && opts.Query == "" {
		return nil, fmt.Errorf("%w: one of --table or --query is required", warehouse.ErrInvalidConfig)
	}
	return st.DescribeSchema(ctx, opts.Descriptor().BaseQuery(filter.DialectDuckDB))
}
