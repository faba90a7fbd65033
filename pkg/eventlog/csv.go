package eventlog

import (
	"bufio"
	"context"
	"io"

	"github.com/logflow/ptalign/pkg/errors"
)

// csvState represents the current state of the CSV state machine.
type csvState uint8

const (
	csvFieldStart csvState = iota
	csvInField
	csvInQuotedField
	csvQuoteInQuotedField
)

// csvScanner splits lines with a finite state machine that handles embedded
// delimiters and doubled quotes.
type csvScanner struct {
	delimiter byte
	buf       []byte
}

func newCSVScanner(delimiter byte) *csvScanner {
	if delimiter == 0 {
		delimiter = ','
	}
	return &csvScanner{delimiter: delimiter}
}

// scanLine returns the fields of one line. A quoted field may not span
// lines.
func (s *csvScanner) scanLine(line []byte) []string {
	if len(line) == 0 {
		return nil
	}

	fields := make([]string, 0, 16)
	state := csvFieldStart
	start := 0
	s.buf = s.buf[:0]

	for i := 0; i <= len(line); i++ {
		end := i == len(line)
		var c byte
		if !end {
			c = line[i]
		}

		switch state {
		case csvFieldStart:
			switch {
			case end:
				fields = append(fields, "")
			case c == '"':
				s.buf = s.buf[:0]
				state = csvInQuotedField
			case c == s.delimiter:
				fields = append(fields, "")
			default:
				start = i
				state = csvInField
			}

		case csvInField:
			if end || c == s.delimiter {
				fields = append(fields, string(line[start:i]))
				state = csvFieldStart
			}

		case csvInQuotedField:
			switch {
			case end:
				// Unterminated quoted field - take what we have
				fields = append(fields, string(s.buf))
			case c == '"':
				state = csvQuoteInQuotedField
			default:
				s.buf = append(s.buf, c)
			}

		case csvQuoteInQuotedField:
			switch {
			case end || c == s.delimiter:
				fields = append(fields, string(s.buf))
				state = csvFieldStart
			case c == '"':
				s.buf = append(s.buf, '"')
				state = csvInQuotedField
			default:
				// Character after closing quote, be lenient
				s.buf = append(s.buf, c)
				state = csvInQuotedField
			}
		}
	}
	return fields
}

// ReadCSV reads a CSV log with one event per row. Rows are grouped by the
// case column and ordered by timestamp within a case.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) (*Log, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	scanner := newCSVScanner(opts.Delimiter)

	headerLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, errors.ParseError("csv", 0, err)
	}
	headerLine = trimLineEnding(headerLine)
	if len(headerLine) == 0 {
		return nil, errors.New(errors.CodeInvalidFormat, "csv log has no header")
	}
	headerLine = trimBOM(headerLine)

	cols, err := resolveColumns(scanner.scanLine(headerLine), opts)
	if err != nil {
		return nil, err
	}

	var rows []caseEvent
	for lineNum := 2; ; lineNum++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeContextCanceled, "csv read canceled")
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, errors.ParseError("csv", lineNum, err)
		}
		if len(line) == 0 && err == io.EOF {
			break
		}

		if line = trimLineEnding(line); len(line) > 0 {
			if row, ok := cols.row(scanner.scanLine(line)); ok {
				rows = append(rows, row)
			}
		}

		if err == io.EOF {
			break
		}
	}

	return groupByCase(rows), nil
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

func trimBOM(line []byte) []byte {
	if len(line) >= 3 && line[0] == 0xEF && line[1] == 0xBB && line[2] == 0xBF {
		return line[3:]
	}
	return line
}
