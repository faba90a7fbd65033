package eventlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/logflow/ptalign/pkg/errors"
)

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatXES
	FormatCSV
	FormatXLSX
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatXES:
		return "xes"
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// DetectFormat guesses the format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xes":
		return FormatXES
	case ".csv", ".tsv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".parquet", ".pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// Options names the columns of tabular logs. Each column falls back to a
// few common spellings when the configured name is absent.
type Options struct {
	CaseColumn      string
	ActivityColumn  string
	TimestampColumn string
	ResourceColumn  string

	// Delimiter is the CSV field delimiter (default: comma, tab for .tsv).
	Delimiter byte
}

// DefaultOptions returns the XES-style column names.
func DefaultOptions() Options {
	return Options{
		CaseColumn:      KeyCase,
		ActivityColumn:  KeyActivity,
		TimestampColumn: KeyTimestamp,
		ResourceColumn:  KeyResource,
		Delimiter:       ',',
	}
}

var columnAliases = map[string][]string{
	"case":      {"case_id", "case:concept:name", "Case ID", "CaseID", "case"},
	"activity":  {"activity", "concept:name", "Activity", "event"},
	"timestamp": {"timestamp", "time:timestamp", "Timestamp", "time"},
	"resource":  {"resource", "org:resource", "Resource"},
}

// columns holds resolved header indices, -1 when absent.
type columns struct {
	caseIdx, activityIdx, timestampIdx, resourceIdx int
	header                                          []string
}

func resolveColumns(header []string, opts Options) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	find := func(name, role string) int {
		if i, ok := idx[name]; ok && name != "" {
			return i
		}
		for _, alias := range columnAliases[role] {
			if i, ok := idx[alias]; ok {
				return i
			}
		}
		return -1
	}

	c := columns{
		caseIdx:      find(opts.CaseColumn, "case"),
		activityIdx:  find(opts.ActivityColumn, "activity"),
		timestampIdx: find(opts.TimestampColumn, "timestamp"),
		resourceIdx:  find(opts.ResourceColumn, "resource"),
		header:       header,
	}
	if c.caseIdx < 0 {
		return c, errors.MissingColumn(opts.CaseColumn, header)
	}
	if c.activityIdx < 0 {
		return c, errors.MissingColumn(opts.ActivityColumn, header)
	}
	return c, nil
}

// row turns one record into a caseEvent. ok is false for rows without a
// case or an activity.
func (c columns) row(fields []string) (caseEvent, bool) {
	get := func(i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return fields[i]
	}

	r := caseEvent{caseID: get(c.caseIdx)}
	r.event.Activity = get(c.activityIdx)
	if r.caseID == "" || r.event.Activity == "" {
		return r, false
	}
	if ts := get(c.timestampIdx); ts != "" {
		if ns, err := ParseTimestamp(ts); err == nil {
			r.event.Timestamp = ns
		}
	}
	r.event.Resource = get(c.resourceIdx)

	for i, name := range c.header {
		if i == c.caseIdx || i == c.activityIdx || i == c.timestampIdx || i == c.resourceIdx {
			continue
		}
		if v := get(i); v != "" {
			if r.event.Attributes == nil {
				r.event.Attributes = make(map[string]string)
			}
			r.event.Attributes[name] = v
		}
	}
	return r, true
}

// Load reads the log at path, choosing the loader by extension.
func Load(ctx context.Context, path string, opts Options) (*Log, error) {
	format := DetectFormat(path)
	if format == FormatParquet {
		return QueryDuckDB(ctx, path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(path)
		}
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "failed to open event log").
			WithContext("path", path)
	}
	defer f.Close()

	switch format {
	case FormatXES:
		return ReadXES(ctx, f)
	case FormatCSV:
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		return ReadCSV(ctx, f, opts)
	case FormatXLSX:
		return ReadXLSX(ctx, f, opts)
	}
	return nil, errors.New(errors.CodeInvalidFormat, "unsupported event log format").
		WithContext("path", path)
}
