package warehouse

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugr-lab/warehouse-go/filter"
	"github.com/hugr-lab/warehouse-go/pushdown"
)

// Option keys accepted by ParseOptions.
const (
	OptionDatabase     = "database"
	OptionDefaultDB    = "default.db"
	OptionTable        = "table"
	OptionQuery        = "query"
	OptionPartition    = "partition"
	OptionMetastoreURI = "metastoreUri"
	OptionDialect      = "dialect"
	OptionSplitColumn  = "split.column"
	OptionSplitCount   = "split.count"
)

const (
	// DefaultDatabase is used when no database option is given.
	DefaultDatabase = "default"
	// DefaultMetastoreURI is used when no metastoreUri option is given.
	DefaultMetastoreURI = "thrift://localhost:9083"
)

// Standard errors returned by the warehouse package.
var (
	// ErrInvalidConfig indicates Options or a component config failed validation.
	ErrInvalidConfig = errors.New("invalid warehouse config")

	// ErrWriterClosed indicates a DataWriter was used after Commit or Abort.
	ErrWriterClosed = errors.New("data writer already committed or aborted")
)

// Options holds the connection-independent settings of a scan or a write
// stream. They are resolved once, when the reader or writer is created.
type Options struct {
	// Database qualifies Table.
	// OPTIONAL: defaults to DefaultDatabase.
	Database string `yaml:"database"`

	// Table is the table to scan or write.
	// REQUIRED for writes. For reads exactly one of Table and Query is set.
	Table string `yaml:"table"`

	// Query is a raw sub-query to scan instead of a table.
	Query string `yaml:"query"`

	// Partition holds static partition values for writes, in partition
	// column order.
	// OPTIONAL.
	Partition []string `yaml:"partition"`

	// MetastoreURI locates the store's metadata service.
	// OPTIONAL: defaults to DefaultMetastoreURI.
	MetastoreURI string `yaml:"metastore_uri"`

	// Dialect is the SQL dialect of the remote store.
	// OPTIONAL: defaults to filter.DialectHive.
	Dialect filter.Dialect `yaml:"dialect"`

	// SplitColumn is the column whose hash spreads a scan over splits.
	// OPTIONAL: without it a scan has a single split.
	SplitColumn string `yaml:"split_column"`

	// SplitCount is the number of splits when SplitColumn is set.
	// OPTIONAL: values below 2 mean a single split.
	SplitCount int `yaml:"split_count"`

	// LogLevel is one of debug, info, warn, error.
	// OPTIONAL: defaults to info. Ignored when a Logger is supplied.
	LogLevel string `yaml:"log_level"`
}

// ParseOptions reads Options from string key/value pairs using the Option*
// keys. The "default.db" key wins over "database", and "partition" is a
// comma separated list.
func ParseOptions(kv map[string]string) (Options, error) {
	opts := Options{
		Database:     kv[OptionDatabase],
		Table:        kv[OptionTable],
		Query:        kv[OptionQuery],
		MetastoreURI: kv[OptionMetastoreURI],
		SplitColumn:  kv[OptionSplitColumn],
	}
	if db, ok := kv[OptionDefaultDB]; ok && db != "" {
		opts.Database = db
	}
	if p := kv[OptionPartition]; p != "" {
		opts.Partition = strings.Split(p, ",")
	}

	d, err := filter.ParseDialect(kv[OptionDialect])
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	opts.Dialect = d

	if s := kv[OptionSplitCount]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Options{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, OptionSplitCount, err)
		}
		opts.SplitCount = n
	}

	opts.applyDefaults()
	return opts, nil
}

// LoadOptionsFile reads Options from a YAML file.
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options file: %w", err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	d, err := filter.ParseDialect(string(opts.Dialect))
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	opts.Dialect = d

	opts.applyDefaults()
	return opts, nil
}

func (o *Options) applyDefaults() {
	if o.Database == "" {
		o.Database = DefaultDatabase
	}
	if o.MetastoreURI == "" {
		o.MetastoreURI = DefaultMetastoreURI
	}
	if o.Dialect == "" {
		o.Dialect = filter.DialectHive
	}
}

// StatementType reports whether a read scans Table or runs Query.
func (o Options) StatementType() pushdown.StatementType {
	if o.Query != "" {
		return pushdown.CustomQuery
	}
	return pushdown.FullTableScan
}

// Descriptor returns the scan descriptor for a read.
func (o Options) Descriptor() pushdown.Descriptor {
	if o.StatementType() == pushdown.CustomQuery {
		return pushdown.QueryScan(o.Query)
	}
	return pushdown.TableScan(o.Database, o.Table)
}

// validateRead checks Options for a scan.
func (o Options) validateRead() error {
	if o.Table == "" && o.Query == "" {
		return fmt.Errorf("one of %s or %s is required", OptionTable, OptionQuery)
	}
	if o.Table != "" && o.Query != "" {
		return fmt.Errorf("%s and %s are mutually exclusive", OptionTable, OptionQuery)
	}
	if o.SplitCount < 0 {
		return fmt.Errorf("%s must not be negative, got %d", OptionSplitCount, o.SplitCount)
	}
	return nil
}

// validateWrite checks Options for a write stream.
func (o Options) validateWrite() error {
	if o.Table == "" {
		return fmt.Errorf("%s is required", OptionTable)
	}
	return nil
}

// SlogLevel maps LogLevel to an slog.Level.
func (o Options) SlogLevel() slog.Level {
	switch strings.ToLower(o.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger returns logger, or a stderr text logger at level.
func newLogger(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger != nil {
		return logger
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}
