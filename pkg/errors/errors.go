// Package errors provides structured errors with codes, context, and stack
// traces for ptalign.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound  Code = "E101"
	CodeInvalidFormat Code = "E103"
	CodeMissingColumn Code = "E104"
	CodeInvalidTree   Code = "E110"
	CodeInvalidConfig Code = "E111"

	// Processing errors (2xx)
	CodeParseFailed Code = "E201"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"
	CodeCacheFailed Code = "E304"

	// Search errors (4xx)
	CodeContextCanceled   Code = "E401"
	CodePanic             Code = "E403"
	CodeFrontierExhausted Code = "E410"
	CodeSearchLimit       Code = "E411"
	CodeVariantFailed     Code = "E412"

	CodeUnknown Code = "E999"
)

// AlignError is the base error type for all ptalign errors.
type AlignError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are printed sorted so
// messages are stable.
func (e *AlignError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *AlignError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AlignError with the same code.
func (e *AlignError) Is(target error) bool {
	if t, ok := target.(*AlignError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *AlignError) WithContext(key string, value interface{}) *AlignError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AlignError.
func New(code Code, message string) *AlignError {
	return &AlignError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new AlignError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *AlignError {
	return &AlignError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message. Returns nil for a nil err.
func Wrap(err error, code Code, message string) *AlignError {
	if err == nil {
		return nil
	}

	return &AlignError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AlignError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *AlignError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *AlignError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *AlignError {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// InvalidTree creates a malformed process tree error.
func InvalidTree(reason string, node string) *AlignError {
	return New(CodeInvalidTree, reason).WithContext("node", node)
}

// InvalidConfig creates a configuration validation error.
func InvalidConfig(field string, value interface{}, reason string) *AlignError {
	return New(CodeInvalidConfig, reason).
		WithContext("field", field).
		WithContext("value", value)
}

// ParseError creates a parsing error with location.
func ParseError(format string, pos int, err error) *AlignError {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("pos", pos)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var aErr *AlignError
	if errors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var aErr *AlignError
	if errors.As(err, &aErr) {
		return aErr.Code
	}
	return CodeUnknown
}

// IsFatal returns true if the error is an internal invariant violation.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodePanic, CodeFrontierExhausted:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
