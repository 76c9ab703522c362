package store

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	// One connection keeps the in-memory database shared.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
}

func readAll(t *testing.T, rdr array.RecordReader) []arrow.RecordBatch {
	t.Helper()
	var out []arrow.RecordBatch
	for rdr.Next() {
		rec := rdr.RecordBatch()
		rec.Retain()
		out = append(out, rec)
	}
	require.NoError(t, rdr.Err())
	t.Cleanup(func() {
		for _, r := range out {
			r.Release()
		}
	})
	return out
}

func totalRows(recs []arrow.RecordBatch) int64 {
	var n int64
	for _, r := range recs {
		n += r.NumRows()
	}
	return n
}

func TestExecuteBatches(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db,
		"CREATE TABLE t (id BIGINT, name VARCHAR)",
		"INSERT INTO t SELECT i, 'n' || i FROM range(10) r(i)",
	)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	st := New(db, &Options{BatchSize: 4})
	rdr, err := st.Execute(context.Background(), "SELECT id, name FROM t ORDER BY id", schema)
	require.NoError(t, err)
	defer rdr.Release()

	recs := readAll(t, rdr)
	require.Len(t, recs, 3)
	assert.EqualValues(t, 4, recs[0].NumRows())
	assert.EqualValues(t, 2, recs[2].NumRows())
	assert.EqualValues(t, 10, totalRows(recs))

	ids := recs[2].Column(0).(*array.Int64)
	assert.Equal(t, int64(9), ids.Value(1))
	names := recs[0].Column(1).(*array.String)
	assert.Equal(t, "n0", names.Value(0))
}

func TestExecuteEmptyResult(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE t (id BIGINT)")

	st := New(db, nil)
	rdr, err := st.Execute(context.Background(), "SELECT * FROM t", nil)
	require.NoError(t, err)
	defer rdr.Release()

	recs := readAll(t, rdr)
	assert.EqualValues(t, 0, totalRows(recs))
	assert.Equal(t, "id", rdr.Schema().Field(0).Name)
}

func TestExecuteColumnMismatch(t *testing.T) {
	db := openTestDB(t)
	schema := arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int64}}, nil)

	_, err := New(db, nil).Execute(context.Background(), "SELECT 1 AS a, 2 AS b", schema)
	assert.Error(t, err)
}

func TestDescribeSchema(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, `CREATE TABLE t (
		b BOOLEAN, i INTEGER NOT NULL, d DOUBLE, s VARCHAR,
		dt DATE, ts TIMESTAMP, amount DECIMAL(10,2), raw BLOB
	)`)

	schema, err := New(db, nil).DescribeSchema(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	require.Equal(t, 8, schema.NumFields())

	assert.Equal(t, arrow.FixedWidthTypes.Boolean, schema.Field(0).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Int32, schema.Field(1).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, schema.Field(2).Type)
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(3).Type)
	assert.Equal(t, arrow.FixedWidthTypes.Date32, schema.Field(4).Type)
	assert.Equal(t, arrow.TIMESTAMP, schema.Field(5).Type.ID())
	assert.Equal(t, &arrow.Decimal128Type{Precision: 10, Scale: 2}, schema.Field(6).Type)
	assert.Equal(t, arrow.BinaryTypes.Binary, schema.Field(7).Type)
}

func TestExecuteTemporalAndDecimal(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db,
		"CREATE TABLE t (dt DATE, ts TIMESTAMP, amount DECIMAL(10,2))",
		"INSERT INTO t VALUES (DATE '2024-03-01', TIMESTAMP '2024-03-01 10:30:00', 12.34)",
	)

	st := New(db, nil)
	ctx := context.Background()
	schema, err := st.DescribeSchema(ctx, "SELECT * FROM t")
	require.NoError(t, err)

	rdr, err := st.Execute(ctx, "SELECT * FROM t", schema)
	require.NoError(t, err)
	defer rdr.Release()
	recs := readAll(t, rdr)
	require.EqualValues(t, 1, totalRows(recs))

	rec := recs[0]
	day := rec.Column(0).(*array.Date32).Value(0).ToTime()
	assert.Equal(t, "2024-03-01", day.Format(time.DateOnly))

	ts := rec.Column(1).(*array.Timestamp).Value(0).ToTime(arrow.Microsecond)
	assert.Equal(t, "2024-03-01 10:30:00", ts.UTC().Format(time.DateTime))

	amount := rec.Column(2).(*array.Decimal128).Value(0)
	assert.Equal(t, "12.34", amount.ToString(2))
}

func TestAppendWithPartition(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE sales (id BIGINT, region VARCHAR, day VARCHAR)")

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "region", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"eu", ""}, []bool{true, false})
	rec := b.NewRecordBatch()
	defer rec.Release()

	st := New(db, nil)
	err := st.Append(context.Background(), "sales", []string{"2024-03-01"}, []arrow.RecordBatch{rec})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM sales WHERE day = '2024-03-01'").Scan(&n))
	assert.Equal(t, 2, n)

	var nulls int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM sales WHERE region IS NULL").Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestAppendRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE t (id BIGINT NOT NULL)")

	schema := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 0}, []bool{true, false})
	rec := b.NewRecordBatch()
	defer rec.Release()

	err := New(db, nil).Append(context.Background(), "t", nil, []arrow.RecordBatch{rec})
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM t").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestDuckDBTypeToArrow(t *testing.T) {
	tests := []struct {
		in   string
		want arrow.DataType
	}{
		{"bigint", arrow.PrimitiveTypes.Int64},
		{" VARCHAR ", arrow.BinaryTypes.String},
		{"DECIMAL(38,10)", &arrow.Decimal128Type{Precision: 38, Scale: 10}},
		{"DECIMAL", &arrow.Decimal128Type{Precision: 18, Scale: 3}},
		{"GEOMETRY", arrow.BinaryTypes.Binary},
		{"MAP(VARCHAR, INTEGER)", arrow.BinaryTypes.String},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, duckdbTypeToArrow(tt.in), tt.in)
	}
}

func TestParseColumns(t *testing.T) {
	schema, err := ParseColumns("colA BIGINT, amount DECIMAL(10, 2), geom GEOMETRY")
	require.NoError(t, err)
	require.Equal(t, 3, schema.NumFields())
	assert.Equal(t, arrow.PrimitiveTypes.Int64, schema.Field(0).Type)
	assert.Equal(t, &arrow.Decimal128Type{Precision: 10, Scale: 2}, schema.Field(1).Type)
	assert.Equal(t, "geom", schema.Field(2).Name)
	assert.Equal(t, arrow.BinaryTypes.Binary, schema.Field(2).Type)

	_, err = ParseColumns("colA")
	assert.Error(t, err)
	_, err = ParseColumns(" ")
	assert.Error(t, err)
}

func TestAppendValueIntegerRange(t *testing.T) {
	mem := memory.NewGoAllocator()

	i64 := array.NewInt64Builder(mem)
	defer i64.Release()
	appendValue(i64, uint64(math.MaxUint64))
	appendValue(i64, uint64(math.MaxInt64))
	a64 := i64.NewInt64Array()
	defer a64.Release()
	assert.True(t, a64.IsNull(0))
	assert.Equal(t, int64(math.MaxInt64), a64.Value(1))

	i8 := array.NewInt8Builder(mem)
	defer i8.Release()
	appendValue(i8, int64(300))
	appendValue(i8, int64(-129))
	appendValue(i8, int64(-128))
	a8 := i8.NewInt8Array()
	defer a8.Release()
	assert.True(t, a8.IsNull(0))
	assert.True(t, a8.IsNull(1))
	assert.Equal(t, int8(-128), a8.Value(2))

	i32 := array.NewInt32Builder(mem)
	defer i32.Release()
	appendValue(i32, int64(5))
	a32 := i32.NewInt32Array()
	defer a32.Release()
	assert.Equal(t, int32(5), a32.Value(0))

	u64 := array.NewUint64Builder(mem)
	defer u64.Release()
	appendValue(u64, uint64(math.MaxUint64))
	appendValue(u64, int64(-1))
	au := u64.NewUint64Array()
	defer au.Release()
	assert.Equal(t, uint64(math.MaxUint64), au.Value(0))
	assert.True(t, au.IsNull(1))
}
