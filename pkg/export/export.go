// Package export writes alignment results to JSON lines or Parquet files
// and uploads them to object storage.
package export

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/logflow/ptalign/pkg/align"
	"github.com/logflow/ptalign/pkg/errors"
)

// Result is one aligned case.
type Result struct {
	CaseID    string
	Variant   []string
	Alignment *align.Alignment
}

// Writer consumes results in order.
type Writer interface {
	Write(ctx context.Context, r Result) error
	Close() error
}

// jsonRow is the JSON lines record. Field names follow the alignment
// output of the library API.
type jsonRow struct {
	CaseID  string       `json:"case_id"`
	Variant []string     `json:"variant"`
	Cost    int          `json:"cost"`
	Moves   []align.Move `json:"alignment"`
	Optimal bool         `json:"optimal"`
	Fitness float64      `json:"fitness"`
}

// JSONLWriter writes one JSON object per line.
type JSONLWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	rows   int64
}

// NewJSONLWriter creates a writer on w. If w is an io.Closer it is closed
// by Close.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	jw := &JSONLWriter{enc: json.NewEncoder(w)}
	jw.enc.SetEscapeHTML(false)
	if c, ok := w.(io.Closer); ok {
		jw.closer = c
	}
	return jw
}

// Write appends r as one line.
func (w *JSONLWriter) Write(ctx context.Context, r Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Alignment == nil {
		return errors.New(errors.CodeWriteFailed, "result has no alignment").WithContext("case", r.CaseID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	row := jsonRow{
		CaseID:  r.CaseID,
		Variant: r.Variant,
		Cost:    r.Alignment.Cost,
		Moves:   r.Alignment.Moves,
		Optimal: r.Alignment.Optimal,
		Fitness: r.Alignment.Fitness,
	}
	if row.Variant == nil {
		row.Variant = []string{}
	}
	if err := w.enc.Encode(row); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write json line")
	}
	w.rows++
	return nil
}

// RowsWritten returns the number of lines written.
func (w *JSONLWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close closes the underlying writer if it is closable.
func (w *JSONLWriter) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Create opens path for writing and picks the writer by extension:
// .parquet and .pq write Parquet, anything else JSON lines.
func Create(path string) (Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.CodeWriteFailed, "failed to create output directory").
				WithContext("path", path)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "failed to create output file").
			WithContext("path", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		w, err := NewParquetWriter(f, DefaultBatchSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	default:
		return NewJSONLWriter(f), nil
	}
}

// movesString renders moves as a JSON array for storage in a text column.
func movesString(moves []align.Move) (string, error) {
	if moves == nil {
		moves = []align.Move{}
	}
	data, err := json.Marshal(moves)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
