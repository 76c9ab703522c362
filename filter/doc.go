// Package filter models predicates a query planner proposes for pushdown
// and translates them, one at a time, into SQL for the remote store.
//
// # Filters
//
// Filter is a closed set of variants:
//   - Equals: a = v, or the null-safe a <=> v
//   - Compare: <, <=, >, >=, <>
//   - In: a IN (v1, v2, ...)
//   - IsNull / IsNotNull
//   - StringMatch: prefix, suffix or substring match on string columns
//   - And / Or / Not
//   - Unsupported: anything else (UDF predicates, subqueries...)
//
// Filters are compared through Key, so two structurally equal filters
// built independently are the same filter.
//
// # Encoding
//
//	enc := filter.NewHiveEncoder(nil)
//	sql, ok := enc.Encode(schema, filter.Compare{Attribute: "price", Op: filter.OpGreaterThan, Value: int64(100)})
//	if !ok {
//	    // not expressible: apply it locally
//	}
//
// A filter is not expressible when its attribute is missing from the schema,
// its literal does not fit the column's arrow type, it is Unsupported, or
// any operand of And/Or/Not is not expressible. Literals are rendered from
// the column type: DATE and TIMESTAMP literals from time.Time or ISO
// strings, hex blobs from []byte, and WKT geometries from orb.Geometry on
// geoarrow.wkb columns (DuckDB only).
//
// # Column Mapping
//
// Map planner column names to remote names, or replace them with expressions:
//
//	enc := filter.NewDuckDBEncoder(&filter.EncoderOptions{
//	    ColumnMapping: map[string]string{"user_id": "uid"},
//	    ColumnExpressions: map[string]string{
//	        "full_name": "concat(first_name, ' ', last_name)",
//	    },
//	})
//
// # JSON
//
// Parse reads filters from a JSON array; see Parse for the format.
package filter
