package warehouse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/warehouse-go/filter"
	"github.com/hugr-lab/warehouse-go/internal/recovery"
)

// Sink appends record batches to a table of the remote store.
// table is rendered in the store's dialect; partition holds static
// partition values. *store.DuckDB implements Sink.
type Sink interface {
	Append(ctx context.Context, table string, partition []string, records []arrow.RecordBatch) error
}

// CommitMessage reports what one DataWriter committed.
type CommitMessage struct {
	JobID       string
	PartitionID int
	TaskID      int64
	EpochID     int64
	Rows        int64
}

// StreamWriter is the driver side of a streaming write. It hands out
// writer factories to tasks and only logs epoch commits and aborts: data is
// committed by each task when it finishes, so delivery is at least once.
type StreamWriter struct {
	jobID  string
	schema *arrow.Schema
	opts   Options
	sink   Sink
	logger *slog.Logger
}

// NewStreamWriter creates a stream writer for opts.Table. A nil logger
// writes to stderr at Options.LogLevel.
func NewStreamWriter(jobID string, schema *arrow.Schema, opts Options, sink Sink, logger *slog.Logger) (*StreamWriter, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: schema is required", ErrInvalidConfig)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidConfig)
	}
	if err := opts.validateWrite(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	opts.applyDefaults()

	return &StreamWriter{
		jobID:  jobID,
		schema: schema,
		opts:   opts,
		sink:   sink,
		logger: newLogger(logger, opts.SlogLevel()).With("job_id", jobID),
	}, nil
}

// CreateWriterFactory returns the factory shipped to write tasks.
func (w *StreamWriter) CreateWriterFactory() *WriterFactory {
	return &WriterFactory{
		JobID:        w.jobID,
		Schema:       w.schema,
		Database:     w.opts.Database,
		Table:        w.opts.Table,
		Partition:    append([]string(nil), w.opts.Partition...),
		MetastoreURI: w.opts.MetastoreURI,
		dialect:      w.opts.Dialect,
		sink:         w.sink,
		logger:       w.logger,
	}
}

// Commit logs the commit of an epoch.
func (w *StreamWriter) Commit(epochID int64, messages []CommitMessage) {
	w.logger.Info("Epoch committed",
		"epoch_id", epochID,
		"writers", len(messages),
		"rows", totalRows(messages),
	)
}

// Abort logs the abort of an epoch. Rows already committed by tasks stay.
func (w *StreamWriter) Abort(epochID int64, messages []CommitMessage) {
	w.logger.Warn("Epoch aborted",
		"epoch_id", epochID,
		"writers", len(messages),
		"rows", totalRows(messages),
	)
}

func totalRows(messages []CommitMessage) int64 {
	var n int64
	for _, m := range messages {
		n += m.Rows
	}
	return n
}

// WriterFactory creates one DataWriter per write task.
type WriterFactory struct {
	JobID        string
	Schema       *arrow.Schema
	Database     string
	Table        string
	Partition    []string
	MetastoreURI string

	dialect filter.Dialect
	sink    Sink
	logger  *slog.Logger
}

// CreateWriter returns a writer for one task attempt.
func (f *WriterFactory) CreateWriter(partitionID int, taskID, epochID int64) *DataWriter {
	return &DataWriter{
		factory:     f,
		table:       f.dialect.TableName(f.Database, f.Table),
		partitionID: partitionID,
		taskID:      taskID,
		epochID:     epochID,
		logger: f.logger.With(
			"partition_id", partitionID,
			"task_id", taskID,
			"epoch_id", epochID,
		),
	}
}

// DataWriter buffers the batches of one task and appends them to the sink
// in one call on Commit. It is not safe for concurrent use.
type DataWriter struct {
	factory     *WriterFactory
	table       string
	partitionID int
	taskID      int64
	epochID     int64
	buffered    []arrow.RecordBatch
	rows        int64
	closed      bool
	logger      *slog.Logger
}

// Write buffers rec. The writer retains it until Commit or Abort.
func (w *DataWriter) Write(rec arrow.RecordBatch) error {
	if w.closed {
		return ErrWriterClosed
	}
	if !rec.Schema().Equal(w.factory.Schema) {
		return fmt.Errorf("write to %s: record schema does not match table schema", w.table)
	}
	rec.Retain()
	w.buffered = append(w.buffered, rec)
	w.rows += rec.NumRows()
	return nil
}

// Commit appends the buffered batches to the sink.
func (w *DataWriter) Commit(ctx context.Context) (CommitMessage, error) {
	if w.closed {
		return CommitMessage{}, ErrWriterClosed
	}
	w.closed = true
	defer w.release()

	err := recovery.RecoverToError(w.logger, "Append", func() error {
		return w.factory.sink.Append(ctx, w.table, w.factory.Partition, w.buffered)
	})
	if err != nil {
		w.logger.Error("Task commit failed", "table", w.table, "error", err)
		return CommitMessage{}, fmt.Errorf("commit to %s: %w", w.table, err)
	}

	w.logger.Debug("Task committed", "table", w.table, "rows", w.rows)
	return CommitMessage{
		JobID:       w.factory.JobID,
		PartitionID: w.partitionID,
		TaskID:      w.taskID,
		EpochID:     w.epochID,
		Rows:        w.rows,
	}, nil
}

// Abort drops the buffered batches.
func (w *DataWriter) Abort() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true
	w.release()
	w.logger.Debug("Task aborted", "table", w.table, "rows", w.rows)
	return nil
}

func (w *DataWriter) release() {
	recovery.Recover(w.logger, "Release", func() {
		releaseAll(w.buffered)
	})
	w.buffered = nil
}
