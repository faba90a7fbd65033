package export

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/ptalign/pkg/align"
	"github.com/logflow/ptalign/pkg/config"
	"github.com/logflow/ptalign/pkg/errors"
	"github.com/logflow/ptalign/pkg/ptree"
)

func sampleResults(t *testing.T) []Result {
	t.Helper()
	tree := ptree.MustParse("->( 'A', X( 'B', tau ) )")
	s := align.NewSearcher(tree, align.Options{})

	var out []Result
	for i, trace := range [][]string{{"A", "B"}, {"A"}, {"C"}} {
		a, err := s.Align(trace)
		require.NoError(t, err)
		out = append(out, Result{CaseID: []string{"c1", "c2", "c3"}[i], Variant: trace, Alignment: a})
	}
	return out
}

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)
	for _, r := range sampleResults(t) {
		require.NoError(t, w.Write(context.Background(), r))
	}
	require.NoError(t, w.Close())
	assert.EqualValues(t, 3, w.RowsWritten())

	var lines []map[string]interface{}
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var row map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		lines = append(lines, row)
	}
	require.Len(t, lines, 3)

	assert.Equal(t, "c1", lines[0]["case_id"])
	assert.EqualValues(t, 0, lines[0]["cost"])
	assert.Equal(t, true, lines[0]["optimal"])
	assert.Equal(t, []interface{}{
		[]interface{}{"A", "A"},
		[]interface{}{"B", "B"},
	}, lines[0]["alignment"])

	// The silent branch is rendered with a null model label.
	assert.Equal(t, []interface{}{
		[]interface{}{"A", "A"},
		[]interface{}{">>", nil},
	}, lines[1]["alignment"])
}

func TestJSONLWriterRejectsMissingAlignment(t *testing.T) {
	w := NewJSONLWriter(&bytes.Buffer{})
	err := w.Write(context.Background(), Result{CaseID: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeWriteFailed))
}

func TestParquetWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewParquetWriter(&buf, 2)
	require.NoError(t, err)

	results := sampleResults(t)
	for _, r := range results {
		require.NoError(t, w.Write(context.Background(), r))
	}
	assert.EqualValues(t, 2, w.RowsWritten())
	require.NoError(t, w.Close())
	assert.EqualValues(t, 3, w.RowsWritten())

	mem := memory.NewGoAllocator()
	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer table.Release()

	assert.EqualValues(t, 3, table.NumRows())
	assert.Equal(t, "case_id", table.Schema().Field(0).Name)
	assert.Equal(t, "moves", table.Schema().Field(5).Name)

	tr := array.NewTableReader(table, 3)
	defer tr.Release()
	var costs []int64
	for tr.Next() {
		col := tr.Record().Column(2).(*array.Int64)
		for i := 0; i < col.Len(); i++ {
			costs = append(costs, col.Value(i))
		}
	}
	assert.Equal(t, []int64{0, 0, 2}, costs)
}

func TestCreatePicksWriterByExtension(t *testing.T) {
	dir := t.TempDir()

	w, err := Create(filepath.Join(dir, "out", "results.parquet"))
	require.NoError(t, err)
	assert.IsType(t, &ParquetWriter{}, w)
	require.NoError(t, w.Close())

	w, err = Create(filepath.Join(dir, "results.jsonl"))
	require.NoError(t, err)
	assert.IsType(t, &JSONLWriter{}, w)
	require.NoError(t, w.Write(context.Background(), sampleResults(t)[0]))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "results.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"case_id":"c1"`)
}

func TestParseS3Target(t *testing.T) {
	bucket, key, err := ParseS3Target("s3://results/run/1.parquet")
	require.NoError(t, err)
	assert.Equal(t, "results", bucket)
	assert.Equal(t, "run/1.parquet", key)

	for _, bad := range []string{"", "bucket", "bucket/", "/key"} {
		_, _, err := ParseS3Target(bad)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig), bad)
	}
}

func TestS3ConfigFrom(t *testing.T) {
	cfg := S3ConfigFrom(config.ExportConfig{S3Region: "eu-west-1", S3Endpoint: "http://localhost:9000"})
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.True(t, cfg.UsePathStyle)

	assert.False(t, S3ConfigFrom(config.ExportConfig{S3Region: "eu-west-1"}).UsePathStyle)
}

func TestUploadS3MissingFile(t *testing.T) {
	err := UploadS3(context.Background(), S3Config{Region: "us-east-1"}, filepath.Join(t.TempDir(), "none.jsonl"), "b/k")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeFileNotFound))
}

func TestRollup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.parquet")

	w, err := Create(path)
	require.NoError(t, err)
	results := sampleResults(t)
	// A second case of the first variant.
	results = append(results, Result{CaseID: "c4", Variant: results[0].Variant, Alignment: results[0].Alignment})
	for _, r := range results {
		require.NoError(t, w.Write(context.Background(), r))
	}
	require.NoError(t, w.Close())

	res, err := Rollup(context.Background(), path, filepath.Join(dir, "rollup"))
	require.NoError(t, err)
	for _, f := range res.Files() {
		assert.FileExists(t, f)
	}

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close()

	var variants, topCases int
	require.NoError(t, db.QueryRow(fmt.Sprintf(
		"SELECT COUNT(*), MAX(cases) FROM read_parquet(%s)", sqlPath(res.Variants))).Scan(&variants, &topCases))
	assert.Equal(t, 3, variants)
	assert.Equal(t, 2, topCases)

	rows, err := db.Query(fmt.Sprintf("SELECT cost, cases FROM read_parquet(%s)", sqlPath(res.Costs)))
	require.NoError(t, err)
	defer rows.Close()
	got := map[int64]int64{}
	for rows.Next() {
		var cost, cases int64
		require.NoError(t, rows.Scan(&cost, &cases))
		got[cost] = cases
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[int64]int64{0: 3, 2: 1}, got)
}

func TestRollupMissingResults(t *testing.T) {
	_, err := Rollup(context.Background(), filepath.Join(t.TempDir(), "nope.parquet"), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeFileNotFound))
}
