package export

import (
	"context"
	"io"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/ptalign/pkg/errors"
)

// DefaultBatchSize is the number of rows per record batch.
const DefaultBatchSize = 4096

// resultSchema returns the Arrow schema for alignment results.
func resultSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "case_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "variant", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: false},
		{Name: "cost", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "fitness", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "optimal", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
		{Name: "moves", Type: arrow.BinaryTypes.String, Nullable: false},
	}, nil)
}

// ParquetWriter writes results to Parquet using Apache Arrow.
type ParquetWriter struct {
	batchSize int
	output    io.Writer

	schema *arrow.Schema
	writer *pqarrow.FileWriter

	builder *array.RecordBuilder

	mu          sync.Mutex
	rowCount    int
	rowsWritten int64
	closed      bool
}

// NewParquetWriter creates a Snappy-compressed Parquet writer on output.
// If output is an io.Closer it is closed by Close.
func NewParquetWriter(output io.Writer, batchSize int) (*ParquetWriter, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	allocator := memory.NewGoAllocator()
	schema := resultSchema()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, output, writerProps, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "failed to create parquet writer")
	}

	pw := &ParquetWriter{
		batchSize: batchSize,
		output:    output,
		schema:    schema,
		writer:    writer,
		builder:   array.NewRecordBuilder(allocator, schema),
	}
	pw.builder.Reserve(batchSize)
	return pw, nil
}

// Write appends r to the current batch and flushes full batches.
func (w *ParquetWriter) Write(ctx context.Context, r Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Alignment == nil {
		return errors.New(errors.CodeWriteFailed, "result has no alignment").WithContext("case", r.CaseID)
	}
	moves, err := movesString(r.Alignment.Moves)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to encode moves")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New(errors.CodeWriteFailed, "parquet writer is closed")
	}

	w.builder.Field(0).(*array.StringBuilder).Append(r.CaseID)
	lb := w.builder.Field(1).(*array.ListBuilder)
	lb.Append(true)
	vb := lb.ValueBuilder().(*array.StringBuilder)
	for _, a := range r.Variant {
		vb.Append(a)
	}
	w.builder.Field(2).(*array.Int64Builder).Append(int64(r.Alignment.Cost))
	w.builder.Field(3).(*array.Float64Builder).Append(r.Alignment.Fitness)
	w.builder.Field(4).(*array.BooleanBuilder).Append(r.Alignment.Optimal)
	w.builder.Field(5).(*array.StringBuilder).Append(moves)
	w.rowCount++

	if w.rowCount >= w.batchSize {
		return w.flushBatch()
	}
	return nil
}

// flushBatch writes the current batch to Parquet.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	batch := w.builder.NewRecord()
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write record batch")
	}

	w.rowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// RowsWritten returns the number of rows flushed so far.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowsWritten
}

// Close flushes remaining rows and finalizes the file.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushBatch(); err != nil {
		return err
	}
	w.builder.Release()

	// Closes the sink too.
	if err := w.writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to close parquet writer")
	}
	return nil
}
