package telemetry

import (
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/logflow/ptalign/pkg/errors"
)

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.InvalidConfig("log_level", level, "unknown log level")
}

// NewLogger builds a text or JSON logger writing to w.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, errors.InvalidConfig("log_format", format, "log format must be text or json")
	}
	return slog.New(h), nil
}

// NewRunID returns an identifier that ties together the logs, spans and
// exported records of one run.
func NewRunID() string {
	return uuid.NewString()
}
