package pushdown

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/warehouse-go/filter"
)

// ColumnResolver is implemented by encoders that map schema columns to
// remote names or expressions, such as *filter.SQLEncoder.
type ColumnResolver interface {
	// ColumnExpression returns the remote expression of name and whether
	// it differs from the quoted name itself.
	ColumnExpression(name string) (string, bool)
}

// Projections renders a select list of quoted columns, or * when empty.
// When enc resolves a column to a remote name or expression, the column is
// selected as "<expression> AS <name>" so the result keeps schema names.
func Projections(enc filter.Encoder, columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	dialect := enc.Dialect()
	resolver, _ := enc.(ColumnResolver)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		name := dialect.QuoteIdentifier(c)
		if resolver != nil {
			if expr, mapped := resolver.ColumnExpression(c); mapped {
				quoted[i] = expr + " AS " + name
				continue
			}
		}
		quoted[i] = name
	}
	return strings.Join(quoted, ", ")
}

// FullProjection returns the names of every field of schema.
func FullProjection(schema *arrow.Schema) []string {
	if schema == nil {
		return nil
	}
	cols := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = f.Name
	}
	return cols
}

// SelectStar returns a full scan of an already rendered table reference.
func SelectStar(table string) string {
	return "SELECT * FROM " + table
}

// SelectProjectAliasFilter wraps base as an aliased sub-query.
// where is the predicate without the WHERE keyword, or empty.
func SelectProjectAliasFilter(selectCols, base, alias, where string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectCols)
	sb.WriteString(" FROM (")
	sb.WriteString(base)
	sb.WriteString(") AS ")
	sb.WriteString(alias)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return sb.String()
}
