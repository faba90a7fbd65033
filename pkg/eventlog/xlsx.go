package eventlog

import (
	"context"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/ptalign/pkg/errors"
)

// ReadXLSX reads the first sheet of a workbook as a table with one event
// per row.
func ReadXLSX(ctx context.Context, r io.Reader, opts Options) (*Log, error) {
	var xl *excelize.File
	var err error
	if f, ok := r.(*os.File); ok {
		xl, err = excelize.OpenFile(f.Name())
	} else {
		xl, err = excelize.OpenReader(r)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to open xlsx")
	}
	defer xl.Close()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New(errors.CodeInvalidFormat, "no sheets found in xlsx file")
	}

	rows, err := xl.Rows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to read rows").
			WithContext("sheet", sheets[0])
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.New(errors.CodeInvalidFormat, "xlsx file is empty")
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to read header")
	}
	cols, err := resolveColumns(header, opts)
	if err != nil {
		return nil, err
	}

	var out []caseEvent
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeContextCanceled, "xlsx read canceled")
		}
		fields, err := rows.Columns()
		if err != nil {
			continue // Skip malformed rows
		}
		if row, ok := cols.row(fields); ok {
			out = append(out, row)
		}
	}
	return groupByCase(out), nil
}
