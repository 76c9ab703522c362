package pushdown

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/warehouse-go/filter"
)

func fixedAlias() string { return "q_test" }

func newDuckDBPair() (*Accumulator, *Synthesizer) {
	enc := filter.NewDuckDBEncoder(nil)
	return NewAccumulator(enc, nil), NewSynthesizer(enc, fixedAlias, nil)
}

func TestSynthesizeSingleConsumer(t *testing.T) {
	acc, synth := newDuckDBPair()

	notHandled := acc.Propose([]filter.Filter{aGt5, bEqX}, testSchema())
	assert.Equal(t, filter.Keys([]filter.Filter{aGt5, bEqX}), filter.Keys(notHandled))

	query, err := synth.Synthesize(acc, QueryScan("SELECT * FROM t"), testSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT * FROM t) AS q_test WHERE ((colA > 5) AND (colB = 'x'))", query)
}

func TestSynthesizeTwoConsumersAreOred(t *testing.T) {
	acc, synth := newDuckDBPair()

	acc.Propose([]filter.Filter{aGt5}, testSchema())
	acc.Propose([]filter.Filter{filter.Compare{Attribute: "colB", Op: filter.OpLessThan, Value: "2"}}, testSchema())

	query, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), []string{"colA", "colB"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT colA, colB FROM (SELECT * FROM t) AS q_test WHERE (colA > 5) OR (colB < '2')", query)
}

func TestSynthesizeWithoutFilters(t *testing.T) {
	acc, synth := newDuckDBPair()

	query, err := synth.Synthesize(acc, TableScan("main", "items"), testSchema(), FullProjection(testSchema()))
	require.NoError(t, err)
	assert.Equal(t, "SELECT colA, colB FROM (SELECT * FROM main.items) AS q_test", query)
}

func TestSynthesizeColumnMapping(t *testing.T) {
	enc := filter.NewDuckDBEncoder(&filter.EncoderOptions{
		ColumnMapping:     map[string]string{"colA": "col_a"},
		ColumnExpressions: map[string]string{"colB": "lower(raw_b)"},
	})
	acc, synth := NewAccumulator(enc, nil), NewSynthesizer(enc, fixedAlias, nil)

	acc.Propose([]filter.Filter{aGt5}, testSchema())
	query, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), FullProjection(testSchema()))
	require.NoError(t, err)
	assert.Equal(t, "SELECT col_a AS colA, lower(raw_b) AS colB FROM (SELECT * FROM t) AS q_test WHERE (col_a > 5)", query)

	assert.Equal(t, "*", Projections(enc, nil))
	assert.Equal(t, "col_a AS colA", Projections(enc, []string{"colA"}))
	assert.Equal(t, "colA, colB", Projections(filter.NewDuckDBEncoder(nil), []string{"colA", "colB"}))
}

func TestSynthesizeResetsCycle(t *testing.T) {
	acc, synth := newDuckDBPair()
	desc := TableScan("", "t")

	acc.Propose([]filter.Filter{aGt5}, testSchema())

	first, err := synth.Synthesize(acc, desc, testSchema(), nil)
	require.NoError(t, err)
	assert.Contains(t, first, "WHERE (colA > 5)")
	assert.Equal(t, PhaseIdle, acc.Phase())

	second, err := synth.Synthesize(acc, desc, testSchema(), nil)
	require.NoError(t, err)
	assert.NotContains(t, second, "WHERE")
	assert.Equal(t, 1, acc.Len(), "sets survive the cycle reset")

	// A later cycle with filters brings every earlier set back
	acc.Propose([]filter.Filter{bEqX}, testSchema())
	third, err := synth.Synthesize(acc, desc, testSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT * FROM t) AS q_test WHERE (colA > 5) OR (colB = 'x')", third)
}

func TestSynthesizeInexpressibleOnlyCycle(t *testing.T) {
	acc, synth := newDuckDBPair()

	acc.Propose([]filter.Filter{aGt5}, testSchema())
	_, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), nil)
	require.NoError(t, err)

	notHandled := acc.Propose([]filter.Filter{udfArg}, testSchema())
	require.Len(t, notHandled, 1)

	query, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), nil)
	require.NoError(t, err)
	assert.NotContains(t, query, "WHERE")
}

func TestSynthesizeIsOrderIndependent(t *testing.T) {
	sets := [][]filter.Filter{
		{aGt5},
		{bEqX, aLt2},
		{filter.IsNull{Attribute: "colB"}},
	}

	var reference []string
	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}} {
		acc, synth := newDuckDBPair()
		for _, i := range order {
			acc.Propose(sets[i], testSchema())
		}
		query, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), nil)
		require.NoError(t, err)

		terms := whereTerms(t, query)
		if reference == nil {
			reference = terms
			continue
		}
		assert.Equal(t, reference, terms, "order %v", order)
	}
	assert.Len(t, reference, 3)
}

// whereTerms splits the WHERE clause into OR terms, each normalized to its
// sorted AND members.
func whereTerms(t *testing.T, query string) []string {
	t.Helper()
	_, where, ok := strings.Cut(query, " WHERE ")
	require.True(t, ok, "query has no WHERE clause: %s", query)

	var terms []string
	for _, term := range strings.Split(where, " OR ") {
		term = strings.TrimSuffix(strings.TrimPrefix(term, "("), ")")
		members := strings.Split(term, " AND ")
		for i, m := range members {
			members[i] = strings.Trim(m, "()")
		}
		sort.Strings(members)
		terms = append(terms, strings.Join(members, " & "))
	}
	sort.Strings(terms)
	return terms
}

func TestSynthesizeHiveDialect(t *testing.T) {
	enc := filter.NewHiveEncoder(nil)
	acc := NewAccumulator(enc, nil)
	synth := NewSynthesizer(enc, fixedAlias, nil)

	acc.Propose([]filter.Filter{bEqX}, testSchema())
	query, err := synth.Synthesize(acc, TableScan("default", "t1"), testSchema(), FullProjection(testSchema()))
	require.NoError(t, err)
	assert.Equal(t, "SELECT `colA`, `colB` FROM (SELECT * FROM `default`.`t1`) AS q_test WHERE (`colB` = 'x')", query)
}

func TestSynthesizeFreshAlias(t *testing.T) {
	enc := filter.NewDuckDBEncoder(nil)
	acc := NewAccumulator(enc, nil)
	synth := NewSynthesizer(enc, nil, nil)

	first, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), nil)
	require.NoError(t, err)
	second, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), nil)
	require.NoError(t, err)

	assert.Regexp(t, `AS q_[0-9a-f]{32}$`, first)
	assert.NotEqual(t, first, second)
}

// flakyEncoder accepts a filter once, then refuses it.
type flakyEncoder struct {
	filter.Encoder
	calls int
}

func (e *flakyEncoder) Encode(schema *arrow.Schema, f filter.Filter) (string, bool) {
	e.calls++
	if e.calls > 1 {
		return "", false
	}
	return e.Encoder.Encode(schema, f)
}

func TestSynthesizeInvariantViolation(t *testing.T) {
	enc := &flakyEncoder{Encoder: filter.NewDuckDBEncoder(nil)}
	acc := NewAccumulator(enc, nil)
	synth := NewSynthesizer(enc, fixedAlias, nil)

	acc.Propose([]filter.Filter{aGt5}, testSchema())
	query, err := synth.Synthesize(acc, TableScan("", "t"), testSchema(), nil)

	require.Error(t, err)
	assert.Empty(t, query)
	assert.True(t, errors.Is(err, ErrInvariantViolation))

	var upe *UnsupportedPredicateError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, aGt5.Key(), upe.Filter.Key())
	assert.Equal(t, PhaseIdle, acc.Phase(), "the cycle ends even when the build fails")
}

func TestDescriptorBaseQuery(t *testing.T) {
	assert.Equal(t, "SELECT * FROM `db`.`t`", TableScan("db", "t").BaseQuery(filter.DialectHive))
	assert.Equal(t, "select 1 as x", QueryScan("select 1 as x").BaseQuery(filter.DialectHive))
	assert.Equal(t, "full_table_scan", FullTableScan.String())
	assert.Equal(t, "custom_query", CustomQuery.String())
}
