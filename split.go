package warehouse

import (
	"fmt"

	"github.com/hugr-lab/warehouse-go/internal/serialize"
	"github.com/hugr-lab/warehouse-go/pushdown"
)

// Split is one independently readable part of a scan.
type Split struct {
	// Index is the hash bucket of the split, in [0, Count).
	Index int
	// Count is the number of splits of the scan.
	Count int
	// Query reads exactly the rows of this split.
	Query string
	// Ticket is the portable form of the split, see Reader.DecodeSplit.
	Ticket []byte
}

// splitQueries fans query out over count hash buckets of column. query
// exposes schema column names, so column is hashed by its schema name.
// A single bucket returns query unchanged.
func (r *Reader) splitQueries(query string, column string, count int) []string {
	if count < 2 {
		return []string{query}
	}

	dialect := r.encoder.Dialect()
	expr := dialect.QuoteIdentifier(column)

	out := make([]string, count)
	for i := range out {
		out[i] = pushdown.SelectProjectAliasFilter("*", query, r.alias(), dialect.HashBucket(expr, count, i))
	}
	return out
}

func (r *Reader) newSplit(index, count int, query string) (Split, error) {
	ticket, err := r.codec.EncodeSplit(serialize.SplitTicket{
		JobID: r.jobID,
		Index: index,
		Count: count,
		Query: query,
	})
	if err != nil {
		return Split{}, fmt.Errorf("split %d of %d: %w", index, count, err)
	}
	return Split{Index: index, Count: count, Query: query, Ticket: ticket}, nil
}

// DecodeSplit restores a split from its ticket. Tickets planned by another
// reader are rejected with ErrForeignSplit.
func (r *Reader) DecodeSplit(ticket []byte) (Split, error) {
	t, err := r.codec.DecodeSplit(ticket)
	if err != nil {
		return Split{}, err
	}
	if t.JobID != r.jobID {
		return Split{}, fmt.Errorf("%w: ticket of job %q", ErrForeignSplit, t.JobID)
	}
	return Split{Index: t.Index, Count: t.Count, Query: t.Query, Ticket: ticket}, nil
}
