package store

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/duckdb/duckdb-go/v2"

	"github.com/hugr-lab/warehouse-go/filter"
)

// duckdbTypeToArrow maps a DuckDB type name to an Arrow type.
// Unknown types map to string.
func duckdbTypeToArrow(duckdbType string) arrow.DataType {
	normalized := strings.ToUpper(strings.TrimSpace(duckdbType))

	if strings.HasPrefix(normalized, "DECIMAL") || strings.HasPrefix(normalized, "NUMERIC") {
		return decimalType(normalized)
	}

	switch normalized {
	case "BOOLEAN", "BOOL":
		return arrow.FixedWidthTypes.Boolean
	case "TINYINT", "INT1":
		return arrow.PrimitiveTypes.Int8
	case "SMALLINT", "INT2":
		return arrow.PrimitiveTypes.Int16
	case "INTEGER", "INT", "INT4":
		return arrow.PrimitiveTypes.Int32
	case "BIGINT", "INT8":
		return arrow.PrimitiveTypes.Int64
	case "UTINYINT":
		return arrow.PrimitiveTypes.Uint8
	case "USMALLINT":
		return arrow.PrimitiveTypes.Uint16
	case "UINTEGER":
		return arrow.PrimitiveTypes.Uint32
	case "UBIGINT":
		return arrow.PrimitiveTypes.Uint64
	case "FLOAT", "FLOAT4", "REAL":
		return arrow.PrimitiveTypes.Float32
	case "DOUBLE", "FLOAT8":
		return arrow.PrimitiveTypes.Float64
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR":
		return arrow.BinaryTypes.String
	case "BLOB", "BYTEA", "GEOMETRY":
		return arrow.BinaryTypes.Binary
	case "DATE":
		return arrow.FixedWidthTypes.Date32
	case "TIME":
		return arrow.FixedWidthTypes.Time64us
	case "TIMESTAMP":
		return &arrow.TimestampType{Unit: arrow.Microsecond}
	case "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ":
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

func isGeometryType(duckdbType string) bool {
	return strings.EqualFold(strings.TrimSpace(duckdbType), "GEOMETRY")
}

// decimalType parses DECIMAL(p,s). A bare DECIMAL is DuckDB's DECIMAL(18,3).
func decimalType(normalized string) arrow.DataType {
	precision, scale := int32(18), int32(3)
	if open := strings.IndexByte(normalized, '('); open >= 0 && strings.HasSuffix(normalized, ")") {
		parts := strings.Split(normalized[open+1:len(normalized)-1], ",")
		if p, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			precision = int32(p)
			scale = 0
		}
		if len(parts) > 1 {
			if s, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
				scale = int32(s)
			}
		}
	}
	return &arrow.Decimal128Type{Precision: precision, Scale: scale}
}

// appendValue appends a value scanned by database/sql to builder, or null
// when the value cannot be represented.
func appendValue(builder array.Builder, value any) {
	if value == nil {
		builder.AppendNull()
		return
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		if v, ok := value.(bool); ok {
			b.Append(v)
		} else {
			b.AppendNull()
		}
	case *array.Int8Builder:
		appendInt(b, value, math.MinInt8, math.MaxInt8, func(v int64) { b.Append(int8(v)) })
	case *array.Int16Builder:
		appendInt(b, value, math.MinInt16, math.MaxInt16, func(v int64) { b.Append(int16(v)) })
	case *array.Int32Builder:
		appendInt(b, value, math.MinInt32, math.MaxInt32, func(v int64) { b.Append(int32(v)) })
	case *array.Int64Builder:
		appendInt(b, value, math.MinInt64, math.MaxInt64, b.Append)
	case *array.Uint8Builder:
		appendInt(b, value, 0, math.MaxUint8, func(v int64) { b.Append(uint8(v)) })
	case *array.Uint16Builder:
		appendInt(b, value, 0, math.MaxUint16, func(v int64) { b.Append(uint16(v)) })
	case *array.Uint32Builder:
		appendInt(b, value, 0, math.MaxUint32, func(v int64) { b.Append(uint32(v)) })
	case *array.Uint64Builder:
		if v, ok := value.(uint64); ok {
			b.Append(v)
			return
		}
		appendInt(b, value, 0, math.MaxInt64, func(v int64) { b.Append(uint64(v)) })
	case *array.Float32Builder:
		if f, ok := asFloat(value); ok {
			b.Append(float32(f))
		} else {
			b.AppendNull()
		}
	case *array.Float64Builder:
		if f, ok := asFloat(value); ok {
			b.Append(f)
		} else {
			b.AppendNull()
		}
	case *array.StringBuilder:
		switch v := value.(type) {
		case string:
			b.Append(v)
		case []byte:
			b.Append(string(v))
		default:
			b.Append(fmt.Sprint(v))
		}
	case *array.BinaryBuilder:
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.AppendString(v)
		default:
			b.AppendNull()
		}
	case *array.Date32Builder:
		if t, ok := value.(time.Time); ok {
			b.Append(arrow.Date32FromTime(t))
		} else {
			b.AppendNull()
		}
	case *array.Time64Builder:
		if t, ok := value.(time.Time); ok {
			midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
			d := t.Sub(midnight)
			if b.Type().(*arrow.Time64Type).Unit == arrow.Nanosecond {
				b.Append(arrow.Time64(d.Nanoseconds()))
			} else {
				b.Append(arrow.Time64(d.Microseconds()))
			}
		} else {
			b.AppendNull()
		}
	case *array.TimestampBuilder:
		t, ok := value.(time.Time)
		if !ok {
			b.AppendNull()
			return
		}
		ts, err := arrow.TimestampFromTime(t, b.Type().(*arrow.TimestampType).Unit)
		if err != nil {
			b.AppendNull()
			return
		}
		b.Append(ts)
	case *array.Decimal128Builder:
		dt := b.Type().(*arrow.Decimal128Type)
		if n, ok := asDecimal(value, dt.Precision, dt.Scale); ok {
			b.Append(n)
		} else {
			b.AppendNull()
		}
	default:
		builder.AppendNull()
	}
}

// appendInt appends an integral value within [lo, hi], or null when the
// value is not integral or out of range.
func appendInt(b array.Builder, value any, lo, hi int64, appendFn func(int64)) {
	var v int64
	switch x := value.(type) {
	case int:
		v = int64(x)
	case int8:
		v = int64(x)
	case int16:
		v = int64(x)
	case int32:
		v = int64(x)
	case int64:
		v = x
	case uint8:
		v = int64(x)
	case uint16:
		v = int64(x)
	case uint32:
		v = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			b.AppendNull()
			return
		}
		v = int64(x)
	case *big.Int:
		if !x.IsInt64() {
			b.AppendNull()
			return
		}
		v = x.Int64()
	default:
		b.AppendNull()
		return
	}
	if v < lo || v > hi {
		b.AppendNull()
		return
	}
	appendFn(v)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// asDecimal converts the driver's decimal as well as floats and numeric
// strings.
func asDecimal(value any, precision, scale int32) (decimal128.Num, bool) {
	switch v := value.(type) {
	case duckdb.Decimal:
		if v.Value == nil {
			return decimal128.Num{}, false
		}
		n, err := decimal128.FromBigInt(v.Value).Rescale(int32(v.Scale), scale)
		if err != nil || !n.FitsInPrecision(precision) {
			return decimal128.Num{}, false
		}
		return n, true
	case float64:
		n, err := decimal128.FromFloat64(v, precision, scale)
		return n, err == nil
	case string:
		n, err := decimal128.FromString(v, precision, scale)
		return n, err == nil
	case fmt.Stringer:
		n, err := decimal128.FromString(v.String(), precision, scale)
		return n, err == nil
	default:
		return decimal128.Num{}, false
	}
}

// valueAt returns row i of arr as a value accepted by the duckdb driver.
func valueAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return a.Value(i)
	case *array.Int16:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return a.Value(i)
	case *array.Uint16:
		return a.Value(i)
	case *array.Uint32:
		return a.Value(i)
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return append([]byte(nil), a.Value(i)...)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return a.Value(i).ToString(scale)
	case *array.FixedSizeBinary:
		return hex.EncodeToString(a.Value(i))
	default:
		return arr.ValueStr(i)
	}
}

// ParseColumns reads a schema from a "name TYPE, name TYPE" list, the form
// of a CREATE TABLE column list. A type may carry parentheses with commas.
func ParseColumns(columns string) (*arrow.Schema, error) {
	var fields []arrow.Field
	for _, def := range splitTopLevel(columns) {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		name, typ, ok := strings.Cut(def, " ")
		if !ok || strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("column %q has no type", def)
		}
		typ = strings.TrimSpace(typ)
		if isGeometryType(typ) {
			fields = append(fields, filter.NewGeometryField(name, true))
			continue
		}
		fields = append(fields, arrow.Field{Name: name, Type: duckdbTypeToArrow(typ), Nullable: true})
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no columns in %q", columns)
	}
	return arrow.NewSchema(fields, nil), nil
}

func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
