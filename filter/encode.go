package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Encoder translates a single filter into a SQL predicate fragment.
// Implementations must be pure: the same schema and filter always produce
// the same result.
type Encoder interface {
	// Encode returns the predicate for f and true, or "" and false when f
	// cannot be expressed against schema in the target dialect.
	Encode(schema *arrow.Schema, f Filter) (string, bool)

	// Dialect returns the SQL dialect the encoder produces.
	Dialect() Dialect
}

// EncoderOptions configures encoding behavior.
type EncoderOptions struct {
	// ColumnMapping maps schema column names to remote column names.
	// Columns not in the map use their original names.
	ColumnMapping map[string]string

	// ColumnExpressions maps column names to SQL expressions.
	// Takes precedence over ColumnMapping.
	ColumnExpressions map[string]string
}

// Dialect is the SQL flavour spoken by the remote store.
type Dialect string

const (
	// DialectDuckDB targets DuckDB (double-quoted identifiers, spatial functions).
	DialectDuckDB Dialect = "duckdb"
	// DialectHive targets HiveQL/LLAP (backtick identifiers, backslash escapes).
	DialectHive Dialect = "hive"
)

// ParseDialect resolves a dialect name. An empty name selects Hive.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hive", "hiveql", "llap":
		return DialectHive, nil
	case "duckdb":
		return DialectDuckDB, nil
	default:
		return "", fmt.Errorf("unknown SQL dialect %q", name)
	}
}

// QuoteIdentifier returns name quoted for the dialect.
// Hive identifiers are always quoted; DuckDB ones only when needed.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == DialectHive {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	if needsQuoting(name) {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return name
}

// QuoteLiteral returns s as a SQL string literal.
func (d Dialect) QuoteLiteral(s string) string {
	if d == DialectHive {
		s = strings.ReplaceAll(s, `\`, `\\`)
		return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	return "'" + escapeString(s) + "'"
}

// TableName renders a possibly database-qualified table reference.
// A table already containing a dot is treated as qualified and only split
// and quoted part by part.
func (d Dialect) TableName(database, table string) string {
	parts := strings.Split(table, ".")
	if len(parts) == 1 && database != "" {
		parts = []string{database, table}
	}
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// HashBucket returns a predicate selecting rows of expr that fall into
// bucket out of buckets. Buckets partition all rows, NULLs included.
func (d Dialect) HashBucket(expr string, buckets, bucket int) string {
	n := strconv.Itoa(buckets)
	b := strconv.Itoa(bucket)
	if d == DialectHive {
		return "pmod(hash(" + expr + "), " + n + ") = " + b
	}
	return "hash(" + expr + ") % " + n + " = " + b
}

// likePattern builds a LIKE predicate whose pattern literal matches prefix,
// suffix or substring p exactly.
func (d Dialect) likePattern(column string, mode MatchMode, p string) string {
	escaped := escapeLike(p)
	switch mode {
	case MatchStartsWith:
		escaped += "%"
	case MatchEndsWith:
		escaped = "%" + escaped
	default:
		escaped = "%" + escaped + "%"
	}
	if d == DialectHive {
		return column + " LIKE " + d.QuoteLiteral(escaped)
	}
	return column + " LIKE " + d.QuoteLiteral(escaped) + ` ESCAPE '\'`
}

// escapeLike prefixes LIKE metacharacters with a backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// escapeString escapes single quotes in a string value for SQL.
func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// needsQuoting returns true if the identifier needs quoting.
func needsQuoting(name string) bool {
	if len(name) == 0 {
		return true
	}

	// Check first character (must be letter or underscore)
	c := name[0]
	if !isLetter(c) && c != '_' {
		return true
	}

	for i := 1; i < len(name); i++ {
		c = name[i]
		if !isLetter(c) && !isDigit(c) && c != '_' {
			return true
		}
	}

	// Check for reserved words (simplified list)
	switch strings.ToUpper(name) {
	case "SELECT", "FROM", "WHERE", "AND", "OR", "NOT", "NULL", "TRUE", "FALSE",
		"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "TABLE", "INDEX",
		"JOIN", "LEFT", "RIGHT", "INNER", "OUTER", "ON", "AS", "IN", "IS", "LIKE",
		"BETWEEN", "EXISTS", "CASE", "WHEN", "THEN", "ELSE", "END", "ORDER", "BY",
		"GROUP", "HAVING", "LIMIT", "OFFSET", "UNION", "EXCEPT", "INTERSECT",
		"ALL", "DISTINCT", "VALUES", "SET", "INTO", "PRIMARY", "KEY", "FOREIGN",
		"REFERENCES", "CONSTRAINT", "DEFAULT", "CHECK", "UNIQUE", "ASC", "DESC",
		"NULLS", "FIRST", "LAST", "CAST", "INTERVAL", "DATE", "TIME", "TIMESTAMP":
		return true
	}

	return false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
