package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/ptalign/pkg/errors"
)

// RollupResult holds the paths of the generated tables.
type RollupResult struct {
	OutputDir string `json:"output_dir"`
	Variants  string `json:"variants"`
	Costs     string `json:"costs"`
}

// Files returns all generated file paths.
func (r *RollupResult) Files() []string {
	return []string{r.Variants, r.Costs}
}

// Rollup aggregates a Parquet result file written by ParquetWriter into two
// tables under outputDir:
//
//	variants.parquet  one row per variant with its case count, cost and mean fitness
//	costs.parquet     the number of cases per alignment cost
func Rollup(ctx context.Context, resultsPath, outputDir string) (*RollupResult, error) {
	if _, err := os.Stat(resultsPath); err != nil {
		return nil, errors.FileNotFound(resultsPath)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "failed to create rollup directory").
			WithContext("path", outputDir)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "failed to open duckdb")
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE results AS SELECT * FROM read_parquet(%s)", sqlPath(resultsPath)))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to load results").
			WithContext("path", resultsPath)
	}

	res := &RollupResult{
		OutputDir: outputDir,
		Variants:  filepath.Join(outputDir, "variants.parquet"),
		Costs:     filepath.Join(outputDir, "costs.parquet"),
	}

	variants := `
		SELECT
			variant,
			COUNT(*) AS cases,
			MIN(cost) AS cost,
			AVG(fitness) AS mean_fitness,
			BOOL_AND(optimal) AS optimal
		FROM results
		GROUP BY variant
		ORDER BY cases DESC, cost DESC`
	if err := copyParquet(ctx, db, variants, res.Variants); err != nil {
		return nil, err
	}

	costs := `
		SELECT cost, COUNT(*) AS cases
		FROM results
		GROUP BY cost
		ORDER BY cost`
	if err := copyParquet(ctx, db, costs, res.Costs); err != nil {
		return nil, err
	}
	return res, nil
}

func copyParquet(ctx context.Context, db *sql.DB, query, path string) error {
	stmt := fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION 'snappy')", query, sqlPath(path))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write rollup table").
			WithContext("path", path)
	}
	return nil
}

// sqlPath quotes a file path as a SQL string literal.
func sqlPath(path string) string {
	return "'" + strings.ReplaceAll(filepath.ToSlash(path), "'", "''") + "'"
}
