package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/ptalign/pkg/errors"
)

// QueryDuckDB reads a Parquet or CSV log through an in-memory DuckDB
// instance. Every column is read as text and mapped like a CSV header.
func QueryDuckDB(ctx context.Context, path string, opts Options) (*Log, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to open duckdb")
	}
	defer db.Close()

	reader := "read_parquet"
	if DetectFormat(path) == FormatCSV {
		reader = "read_csv_auto"
	}
	// Table functions do not take bind parameters for the path.
	query := fmt.Sprintf("SELECT * FROM %s(%s)", reader, quoteLiteral(filepath.ToSlash(path)))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "duckdb query failed").
			WithContext("path", path)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to read columns")
	}
	cols, err := resolveColumns(header, opts)
	if err != nil {
		return nil, err
	}

	values := make([]sql.NullString, len(header))
	dest := make([]interface{}, len(header))
	fields := make([]string, len(header))
	var out []caseEvent
	for rows.Next() {
		for i := range dest {
			dest[i] = &textScanner{dst: &values[i]}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to scan row")
		}
		for i, v := range values {
			fields[i] = v.String
			if !v.Valid {
				fields[i] = ""
			}
		}
		if row, ok := cols.row(fields); ok {
			out = append(out, row)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "duckdb row iteration failed")
	}
	return groupByCase(out), nil
}

// textScanner accepts any column type and keeps its text form.
type textScanner struct {
	dst *sql.NullString
}

func (s *textScanner) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s.dst = sql.NullString{}
	case string:
		*s.dst = sql.NullString{String: v, Valid: true}
	case []byte:
		*s.dst = sql.NullString{String: string(v), Valid: true}
	case interface{ Format(string) string }:
		// time.Time
		*s.dst = sql.NullString{String: v.Format("2006-01-02T15:04:05.999999999Z07:00"), Valid: true}
	default:
		*s.dst = sql.NullString{String: fmt.Sprint(v), Valid: true}
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
