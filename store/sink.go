package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Append inserts records into table in a single transaction. table is an
// already rendered table reference. Partition values are bound after the
// record columns of every row, so the target table lists its partition
// columns last.
func (s *DuckDB) Append(ctx context.Context, table string, partition []string, records []arrow.RecordBatch) (err error) {
	if len(records) == 0 {
		return nil
	}

	ncols := int(records[0].NumCols()) + len(partition)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", ncols), ", ")
	stmtSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return fmt.Errorf("prepare append to %s: %w", table, err)
	}
	defer stmt.Close()

	rows := 0
	args := make([]any, ncols)
	for _, rec := range records {
		if int(rec.NumCols())+len(partition) != ncols {
			return fmt.Errorf("append to %s: record has %d columns, expected %d", table, rec.NumCols(), ncols-len(partition))
		}
		for r := 0; r < int(rec.NumRows()); r++ {
			for c := 0; c < int(rec.NumCols()); c++ {
				args[c] = valueAt(rec.Column(c), r)
			}
			for p, v := range partition {
				args[int(rec.NumCols())+p] = v
			}
			if _, err = stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("append to %s: %w", table, err)
			}
			rows++
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append to %s: %w", table, err)
	}

	s.logger.Debug("Records appended",
		"table", table,
		"rows", rows,
		"partition", partition,
	)
	return nil
}
