package pushdown

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/warehouse-go/filter"
)

// StatementType tells how the base query of a scan is formed.
type StatementType int

const (
	// FullTableScan reads a whole table.
	FullTableScan StatementType = iota
	// CustomQuery reads the result of a caller-supplied query.
	CustomQuery
)

func (t StatementType) String() string {
	if t == CustomQuery {
		return "custom_query"
	}
	return "full_table_scan"
}

// Descriptor identifies what a scan reads. It is fixed when the scan is
// created.
type Descriptor struct {
	Type     StatementType
	Database string
	Table    string
	Query    string
}

// TableScan describes a full scan of database.table.
func TableScan(database, table string) Descriptor {
	return Descriptor{Type: FullTableScan, Database: database, Table: table}
}

// QueryScan describes a scan of a raw sub-query.
func QueryScan(query string) Descriptor {
	return Descriptor{Type: CustomQuery, Query: query}
}

// BaseQuery renders the unfiltered query of the descriptor.
func (d Descriptor) BaseQuery(dialect filter.Dialect) string {
	if d.Type == CustomQuery {
		return d.Query
	}
	return SelectStar(dialect.TableName(d.Database, d.Table))
}

// Synthesizer builds the final query of a planning cycle from an
// Accumulator. It keeps no state of its own.
type Synthesizer struct {
	encoder filter.Encoder
	alias   AliasFunc
	logger  *slog.Logger
}

// NewSynthesizer creates a synthesizer. A nil alias uses RandomAlias and a
// nil logger slog.Default().
func NewSynthesizer(encoder filter.Encoder, alias AliasFunc, logger *slog.Logger) *Synthesizer {
	if alias == nil {
		alias = RandomAlias
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{encoder: encoder, alias: alias, logger: logger}
}

// Synthesize returns
//
//	SELECT <columns> FROM (<base>) AS <alias> [WHERE (set1) OR (set2) ...]
//
// The WHERE clause is present only when the current cycle proposed an
// expressible filter; it then covers every set accumulated so far. The
// accumulator is always returned to PhaseIdle, also on error.
func (s *Synthesizer) Synthesize(acc *Accumulator, desc Descriptor, schema *arrow.Schema, requiredColumns []string) (string, error) {
	phase := acc.endCycle()

	dialect := s.encoder.Dialect()
	selectCols := Projections(s.encoder, requiredColumns)
	base := desc.BaseQuery(dialect)

	var where string
	if phase == PhaseFiltersPending && acc.Len() > 0 {
		w, err := s.where(acc, schema)
		if err != nil {
			s.logger.Error("Query build aborted",
				"statement_type", desc.Type.String(),
				"error", err,
			)
			return "", err
		}
		where = w
	}

	query := SelectProjectAliasFilter(selectCols, base, s.alias(), where)
	s.logger.Info("Query synthesized",
		"statement_type", desc.Type.String(),
		"phase", phase.String(),
		"filter_sets", acc.Len(),
		"query", query,
	)
	return query, nil
}

// where ORs every accumulated set. Filters are translated again here
// rather than cached; the encoder is required to be pure.
func (s *Synthesizer) where(acc *Accumulator, schema *arrow.Schema) (string, error) {
	rendered := make([]string, 0, acc.Len())
	for _, set := range acc.sets {
		r, err := s.renderSet(set, schema)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, r)
	}
	return strings.Join(rendered, " OR "), nil
}

// renderSet renders (f) for a single filter and ((f1) AND (f2) ...) otherwise.
func (s *Synthesizer) renderSet(set FilterSet, schema *arrow.Schema) (string, error) {
	parts := make([]string, 0, set.Len())
	for _, f := range set.filters {
		sql, ok := s.encoder.Encode(schema, f)
		if !ok {
			return "", fmt.Errorf("render filter set: %w", &UnsupportedPredicateError{Filter: f, SetKey: set.key})
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ")", nil
	}
	return "((" + strings.Join(parts, ") AND (") + "))", nil
}
