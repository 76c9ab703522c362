package filter

import (
	"encoding/hex"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// SQLEncoder encodes filters to SQL for a single dialect.
type SQLEncoder struct {
	dialect Dialect
	opts    *EncoderOptions
}

// NewSQLEncoder creates an encoder for dialect.
// If opts is nil, default options are used.
func NewSQLEncoder(dialect Dialect, opts *EncoderOptions) *SQLEncoder {
	if opts == nil {
		opts = &EncoderOptions{}
	}
	return &SQLEncoder{dialect: dialect, opts: opts}
}

// NewDuckDBEncoder creates a DuckDB SQL encoder.
func NewDuckDBEncoder(opts *EncoderOptions) *SQLEncoder {
	return NewSQLEncoder(DialectDuckDB, opts)
}

// NewHiveEncoder creates a HiveQL encoder.
func NewHiveEncoder(opts *EncoderOptions) *SQLEncoder {
	return NewSQLEncoder(DialectHive, opts)
}

// Dialect returns the encoder dialect.
func (e *SQLEncoder) Dialect() Dialect { return e.dialect }

// Encode converts a single filter to SQL.
func (e *SQLEncoder) Encode(schema *arrow.Schema, f Filter) (string, bool) {
	if schema == nil || f == nil {
		return "", false
	}

	switch ft := f.(type) {
	case Equals:
		return e.encodeEquals(schema, ft)
	case Compare:
		return e.encodeCompare(schema, ft)
	case In:
		return e.encodeIn(schema, ft)
	case IsNull:
		col, _, ok := e.column(schema, ft.Attribute)
		if !ok {
			return "", false
		}
		return col + " IS NULL", true
	case IsNotNull:
		col, _, ok := e.column(schema, ft.Attribute)
		if !ok {
			return "", false
		}
		return col + " IS NOT NULL", true
	case StringMatch:
		return e.encodeStringMatch(schema, ft)
	case And:
		return e.encodeBinary(schema, ft.Left, ft.Right, " AND ")
	case Or:
		return e.encodeBinary(schema, ft.Left, ft.Right, " OR ")
	case Not:
		// A looser child turns into a stricter negation.
		if e.approximate(schema, ft.Child) {
			return "", false
		}
		child, ok := e.Encode(schema, ft.Child)
		if !ok {
			return "", false
		}
		return "(NOT (" + child + "))", true
	default:
		// Unsupported and anything else is left to the caller
		return "", false
	}
}

// encodeEquals encodes = and the null-safe <=>.
func (e *SQLEncoder) encodeEquals(schema *arrow.Schema, f Equals) (string, bool) {
	col, field, ok := e.column(schema, f.Attribute)
	if !ok {
		return "", false
	}
	if isGeometry(field) {
		return e.encodeGeometryEquals(col, f)
	}
	v, ok := e.formatValue(field.Type, f.Value)
	if !ok {
		return "", false
	}
	if !f.NullSafe {
		return col + " = " + v, true
	}
	if f.Value == nil {
		return col + " IS NULL", true
	}
	return "(NOT (" + col + " <> " + v + " OR " + col + " IS NULL OR " + v + " IS NULL) OR (" +
		col + " IS NULL AND " + v + " IS NULL))", true
}

// approximate reports whether the encoding of f accepts rows f itself
// rejects. Such predicates are only safe outside a negation.
func (e *SQLEncoder) approximate(schema *arrow.Schema, f Filter) bool {
	switch ft := f.(type) {
	case Equals:
		_, field, ok := e.column(schema, ft.Attribute)
		return ok && isGeometry(field)
	case And:
		return e.approximate(schema, ft.Left) || e.approximate(schema, ft.Right)
	case Or:
		return e.approximate(schema, ft.Left) || e.approximate(schema, ft.Right)
	case Not:
		return e.approximate(schema, ft.Child)
	default:
		return false
	}
}

// encodeGeometryEquals compares geometries topologically. ST_Equals accepts
// every exactly-equal geometry, so the predicate never drops a match, but
// it may keep geometries that are only topologically equal.
func (e *SQLEncoder) encodeGeometryEquals(col string, f Equals) (string, bool) {
	if e.dialect != DialectDuckDB || f.NullSafe {
		return "", false
	}
	geom, ok := f.Value.(orb.Geometry)
	if !ok || geom == nil {
		return "", false
	}
	return "ST_Equals(" + col + ", ST_GeomFromText(" + e.dialect.QuoteLiteral(wkt.MarshalString(geom)) + "))", true
}

// encodeCompare encodes ordering and inequality comparisons.
func (e *SQLEncoder) encodeCompare(schema *arrow.Schema, f Compare) (string, bool) {
	switch f.Op {
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual, OpNotEqual:
	default:
		return "", false
	}
	col, field, ok := e.column(schema, f.Attribute)
	if !ok || isGeometry(field) {
		return "", false
	}
	v, ok := e.formatValue(field.Type, f.Value)
	if !ok {
		return "", false
	}
	return col + " " + string(f.Op) + " " + v, true
}

// encodeIn encodes IN lists. An empty list matches nothing, except that
// NULL stays NULL.
func (e *SQLEncoder) encodeIn(schema *arrow.Schema, f In) (string, bool) {
	col, field, ok := e.column(schema, f.Attribute)
	if !ok || isGeometry(field) {
		return "", false
	}
	if len(f.Values) == 0 {
		return "CASE WHEN " + col + " IS NULL THEN NULL ELSE FALSE END", true
	}

	values := make([]string, 0, len(f.Values))
	for _, value := range f.Values {
		v, ok := e.formatValue(field.Type, value)
		if !ok {
			return "", false
		}
		values = append(values, v)
	}
	return col + " IN (" + strings.Join(values, ", ") + ")", true
}

func (e *SQLEncoder) encodeStringMatch(schema *arrow.Schema, f StringMatch) (string, bool) {
	col, field, ok := e.column(schema, f.Attribute)
	if !ok || !isString(field.Type) {
		return "", false
	}
	switch f.Mode {
	case MatchStartsWith, MatchEndsWith, MatchContains:
	default:
		return "", false
	}
	return e.dialect.likePattern(col, f.Mode, f.Pattern), true
}

// encodeBinary encodes AND/OR. Both sides must be expressible: dropping one
// side of an OR would narrow the result, and partial ANDs are left to the
// caller which re-applies every filter anyway.
func (e *SQLEncoder) encodeBinary(schema *arrow.Schema, left, right Filter, op string) (string, bool) {
	l, ok := e.Encode(schema, left)
	if !ok {
		return "", false
	}
	r, ok := e.Encode(schema, right)
	if !ok {
		return "", false
	}
	return "(" + l + ")" + op + "(" + r + ")", true
}

// column resolves attribute against schema and returns its SQL reference.
func (e *SQLEncoder) column(schema *arrow.Schema, attribute string) (string, arrow.Field, bool) {
	idx := schema.FieldIndices(attribute)
	if len(idx) != 1 {
		return "", arrow.Field{}, false
	}
	field := schema.Field(idx[0])

	// Check for expression mapping first (takes precedence)
	if e.opts.ColumnExpressions != nil {
		if expr, ok := e.opts.ColumnExpressions[attribute]; ok {
			return expr, field, true
		}
	}

	name := attribute
	if e.opts.ColumnMapping != nil {
		if mapped, ok := e.opts.ColumnMapping[attribute]; ok {
			name = mapped
		}
	}
	return e.dialect.QuoteIdentifier(name), field, true
}

// ColumnExpression returns the remote expression of a schema column and
// whether it differs from the plain quoted column name.
func (e *SQLEncoder) ColumnExpression(name string) (string, bool) {
	if expr, ok := e.opts.ColumnExpressions[name]; ok {
		return expr, true
	}
	if mapped, ok := e.opts.ColumnMapping[name]; ok && mapped != name {
		return e.dialect.QuoteIdentifier(mapped), true
	}
	return e.dialect.QuoteIdentifier(name), false
}

// formatValue formats v as a literal of type dt.
// Returns false when v cannot be represented as dt.
func (e *SQLEncoder) formatValue(dt arrow.DataType, v any) (string, bool) {
	if v == nil {
		return "NULL", true
	}

	switch dt.ID() {
	case arrow.BOOL:
		return formatBool(v)
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return formatInteger(v)
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return formatFloat(v)
	case arrow.DECIMAL128, arrow.DECIMAL256:
		return formatDecimal(v)
	case arrow.STRING, arrow.LARGE_STRING:
		s, ok := v.(string)
		if !ok {
			return "", false
		}
		return e.dialect.QuoteLiteral(s), true
	case arrow.BINARY, arrow.LARGE_BINARY:
		return e.formatBinary(v)
	case arrow.DATE32, arrow.DATE64:
		t, ok := asTime(v)
		if !ok {
			return "", false
		}
		return "DATE '" + t.Format("2006-01-02") + "'", true
	case arrow.TIMESTAMP:
		t, ok := asTime(v)
		if !ok {
			return "", false
		}
		return e.formatTimestamp(t), true
	default:
		return "", false
	}
}

// formatBool formats a boolean value.
func formatBool(v any) (string, bool) {
	b, ok := v.(bool)
	if !ok {
		return "", false
	}
	if b {
		return "TRUE", true
	}
	return "FALSE", true
}

// formatInteger formats integral values, including whole floats decoded from JSON.
func formatInteger(v any) (string, bool) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case *big.Int:
		if x == nil {
			return "", false
		}
		return x.String(), true
	default:
		return "", false
	}
}

// formatFloat formats a floating-point value. NaN and infinities have no
// portable literal and are rejected.
func formatFloat(v any) (string, bool) {
	switch x := v.(type) {
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return "", false
		}
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return strconv.FormatFloat(x, 'g', -1, 64), true
	default:
		return formatInteger(v)
	}
}

// formatDecimal accepts numeric strings in addition to numbers.
func formatDecimal(v any) (string, bool) {
	if s, ok := v.(string); ok {
		if strings.Contains(s, "/") {
			return "", false
		}
		r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
		if !ok {
			return "", false
		}
		if r.IsInt() {
			return r.Num().String(), true
		}
		return strings.TrimSpace(s), true
	}
	return formatFloat(v)
}

// formatBinary formats a blob as a hex literal.
func (e *SQLEncoder) formatBinary(v any) (string, bool) {
	b, ok := v.([]byte)
	if !ok {
		return "", false
	}
	if e.dialect == DialectHive {
		return "unhex('" + hex.EncodeToString(b) + "')", true
	}
	return "from_hex('" + hex.EncodeToString(b) + "')", true
}

// formatTimestamp renders t in UTC without losing precision. DuckDB
// TIMESTAMP literals stop at microseconds, so a sub-microsecond value is
// written as TIMESTAMP_NS; Hive timestamps carry nanoseconds.
func (e *SQLEncoder) formatTimestamp(t time.Time) string {
	t = t.UTC()
	formatted := t.Format("2006-01-02 15:04:05")
	ns := t.Nanosecond()
	switch {
	case ns == 0:
		return "TIMESTAMP '" + formatted + "'"
	case ns%1000 == 0:
		return "TIMESTAMP '" + formatted + "." + leftPad(strconv.Itoa(ns/1000), 6) + "'"
	case e.dialect == DialectDuckDB:
		return "TIMESTAMP_NS '" + formatted + "." + leftPad(strconv.Itoa(ns), 9) + "'"
	default:
		return "TIMESTAMP '" + formatted + "." + leftPad(strconv.Itoa(ns), 9) + "'"
	}
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// asTime accepts time.Time values and ISO date/timestamp strings.
func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func isString(dt arrow.DataType) bool {
	return dt.ID() == arrow.STRING || dt.ID() == arrow.LARGE_STRING
}
