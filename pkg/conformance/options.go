package conformance

import (
	"log/slog"

	"github.com/logflow/ptalign/pkg/cache"
	"github.com/logflow/ptalign/pkg/config"
	"github.com/logflow/ptalign/pkg/errors"
	"github.com/logflow/ptalign/pkg/eventlog"
)

// Options controls a conformance run.
type Options struct {
	// ActivityKey selects the event attribute used as the activity label.
	ActivityKey string

	// Cores is the number of variants aligned in parallel. 0 selects
	// max(1, NumCPU-2); 1 aligns sequentially on the calling goroutine.
	Cores int

	// EnableReduction aligns every variant against the tree reduced to the
	// variant's activities.
	EnableReduction bool

	// ShowProgress draws a progress bar on stderr when Progress is nil.
	ShowProgress bool

	// MaxStates bounds every search (0 = unlimited).
	MaxStates int

	// Store persists alignments across runs (optional).
	Store cache.Store

	// Progress is called after every aligned variant.
	Progress func(done, total int)

	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		ActivityKey:     eventlog.KeyActivity,
		EnableReduction: true,
	}
}

// OptionsFrom maps the alignment section of the configuration file.
func OptionsFrom(c config.AlignmentConfig) Options {
	opts := DefaultOptions()
	if c.ActivityKey != "" {
		opts.ActivityKey = c.ActivityKey
	}
	opts.Cores = c.Cores
	opts.EnableReduction = c.EnableReduction
	opts.ShowProgress = c.ShowProgress
	opts.MaxStates = c.MaxStates
	return opts
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.ActivityKey == "" {
		return errors.InvalidConfig("activity_key", o.ActivityKey, "must not be empty")
	}
	if o.Cores < 0 {
		return errors.InvalidConfig("cores", o.Cores, "must be >= 0")
	}
	if o.MaxStates < 0 {
		return errors.InvalidConfig("max_states", o.MaxStates, "must be >= 0")
	}
	return nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
