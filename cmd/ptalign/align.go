package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/ptalign/pkg/align"
	"github.com/logflow/ptalign/pkg/cache"
	"github.com/logflow/ptalign/pkg/conformance"
	"github.com/logflow/ptalign/pkg/eventlog"
	"github.com/logflow/ptalign/pkg/export"
	"github.com/logflow/ptalign/pkg/ptree"
	"github.com/logflow/ptalign/pkg/tui"
)

// Align flags
var (
	treeFlag     string
	logFile      string
	traceFlag    string
	cores        int
	noReduction  bool
	showProgress bool
	activityKey  string
	caseColumn   string
	outputFile   string
	s3Target     string
	rollupDir    string
	redisAddr    string
	maxStates    int
	showMoves    bool
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align an event log or a single trace against a process tree",
	Long: `Align every trace of an event log (XES, CSV, TSV, XLSX or Parquet) against a process tree.

Each distinct variant is aligned once. Results are written as JSON lines or Parquet,
chosen by the output extension, and may be uploaded to S3 afterwards.

Examples:
  ptalign align --tree model.ptree --log orders.xes
  ptalign align --tree "->( 'a', X( 'b', 'c' ) )" --trace a,c
  ptalign align --tree model.ptree --log orders.csv --cores 8 --output results.parquet
  ptalign align --tree model.ptree --log orders.csv --output results.parquet --rollup summary/
  ptalign align --tree model.ptree --log orders.xes --output out.jsonl --s3 bucket/runs/out.jsonl
  ptalign align --tree model.ptree --log orders.xes --redis localhost:6379`,
	RunE: runAlign,
}

func init() {
	addTreeFlag(alignCmd)
	alignCmd.Flags().StringVarP(&logFile, "log", "l", "", "Event log path")
	alignCmd.Flags().StringVar(&traceFlag, "trace", "", "Single comma-separated trace to align instead of a log")
	alignCmd.Flags().IntVar(&cores, "cores", 0, "Variants aligned in parallel (0 = auto, 1 = sequential)")
	alignCmd.Flags().BoolVar(&noReduction, "no-reduction", false, "Align against the full tree for every variant")
	alignCmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress bar")
	alignCmd.Flags().StringVar(&activityKey, "activity-key", "", "Event attribute used as activity (default: concept:name)")
	alignCmd.Flags().StringVar(&caseColumn, "case-column", "", "Case column of tabular logs (default: case:concept:name)")
	alignCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write results to a .jsonl or .parquet file")
	alignCmd.Flags().StringVar(&s3Target, "s3", "", "Upload the output file to bucket/key")
	alignCmd.Flags().StringVar(&rollupDir, "rollup", "", "Write variant and cost summary tables of a Parquet output to this directory")
	alignCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address for the persistent alignment store")
	alignCmd.Flags().IntVar(&maxStates, "max-states", 0, "Give up on a variant after this many search states (0 = unlimited)")
	alignCmd.Flags().BoolVar(&showMoves, "show", false, "Print the moves of every alignment")
}

func addTreeFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&treeFlag, "tree", "t", "", "Process tree in textual notation, or a file containing it")
	cmd.MarkFlagRequired("tree")
}

func runAlign(cmd *cobra.Command, args []string) error {
	singleTrace := cmd.Flags().Changed("trace")
	if singleTrace == (logFile != "") {
		return fmt.Errorf("exactly one of --log and --trace is required")
	}
	if s3Target != "" && outputFile == "" {
		return fmt.Errorf("--s3 requires --output")
	}
	if rollupDir != "" && eventlog.DetectFormat(outputFile) != eventlog.FormatParquet {
		return fmt.Errorf("--rollup requires a Parquet --output")
	}

	tree, err := loadTree(treeFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	opts := alignOptions(cmd)
	opts.Store = store

	if singleTrace {
		a, err := conformance.AlignTrace(ctx, tree, parseTrace(traceFlag), opts)
		if err != nil {
			return err
		}
		tui.PrintAlignment(os.Stdout, "trace", a)
		return nil
	}

	l, err := eventlog.Load(ctx, logFile, logOptions())
	if err != nil {
		return err
	}
	logger.Info("event log loaded", "path", logFile, "traces", len(l.Traces), "events", l.NumEvents())

	summary, err := alignAndExport(ctx, tree, l, opts)
	if summary != nil {
		tui.PrintSummary(os.Stdout, summary)
	}
	return err
}

// alignAndExport aligns l, writes and uploads the results as configured
// and returns the run summary. Results of failed variants are skipped; their
// error is returned after the output is written.
func alignAndExport(ctx context.Context, tree *ptree.Tree, l *eventlog.Log, opts conformance.Options) (*tui.Summary, error) {
	start := time.Now()
	results, alignErr := conformance.AlignLog(ctx, tree, l, opts)
	if alignErr != nil && results == nil {
		return nil, alignErr
	}

	summary := tui.Summarize(results, len(eventlog.LogVariants(l, opts.ActivityKey)))
	summary.RunID = runID
	summary.Duration = time.Since(start)

	if showMoves {
		for i, a := range results {
			if a != nil {
				tui.PrintAlignment(os.Stdout, l.Traces[i].CaseID, a)
			}
		}
	}

	if outputFile != "" {
		if err := writeResults(ctx, outputFile, l, results, opts.ActivityKey); err != nil {
			return summary, err
		}
		summary.Output = outputFile

		if rollupDir != "" {
			res, err := export.Rollup(ctx, outputFile, rollupDir)
			if err != nil {
				return summary, err
			}
			logger.Info("rollup written", "variants", res.Variants, "costs", res.Costs)
		}

		if s3Target != "" {
			if err := export.UploadS3(ctx, export.S3ConfigFrom(cfg.Export), outputFile, s3Target); err != nil {
				return summary, err
			}
			logger.Info("results uploaded", "target", s3Target)
			summary.Output = outputFile + " → s3://" + strings.TrimPrefix(s3Target, "s3://")
		}
	}
	return summary, alignErr
}

func writeResults(ctx context.Context, path string, l *eventlog.Log, results []*align.Alignment, key string) error {
	w, err := export.Create(path)
	if err != nil {
		return err
	}
	for i, a := range results {
		if a == nil {
			continue
		}
		r := export.Result{
			CaseID:    l.Traces[i].CaseID,
			Variant:   l.Traces[i].Project(key),
			Alignment: a,
		}
		if err := w.Write(ctx, r); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// alignOptions merges the configuration file with the flags set on cmd.
func alignOptions(cmd *cobra.Command) conformance.Options {
	opts := conformance.OptionsFrom(cfg.Alignment)
	opts.Logger = logger

	flags := cmd.Flags()
	if flags.Changed("cores") {
		opts.Cores = cores
	}
	if noReduction {
		opts.EnableReduction = false
	}
	if showProgress {
		opts.ShowProgress = true
	}
	if activityKey != "" {
		opts.ActivityKey = activityKey
	}
	if flags.Changed("max-states") {
		opts.MaxStates = maxStates
	}
	return opts
}

func logOptions() eventlog.Options {
	opts := eventlog.DefaultOptions()
	if caseColumn != "" {
		opts.CaseColumn = caseColumn
	}
	return opts
}

// openStore connects the Redis store when an address is configured.
func openStore() (cache.Store, func(), error) {
	c := cfg.Cache
	if redisAddr != "" {
		c.Redis = redisAddr
	}
	if c.Redis == "" {
		return nil, func() {}, nil
	}

	store, err := cache.NewRedisStore(cache.RedisConfigFrom(c))
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("using redis alignment store", "addr", c.Redis)
	return store, func() { store.Close() }, nil
}

// loadTree parses s, or the contents of the file s names.
func loadTree(s string) (*ptree.Tree, error) {
	src := s
	if info, err := os.Stat(s); err == nil && !info.IsDir() {
		data, err := os.ReadFile(s)
		if err != nil {
			return nil, err
		}
		src = string(data)
	}
	return ptree.Parse(strings.TrimSpace(src))
}

// parseTrace splits a comma-separated trace. The empty string is the empty
// trace.
func parseTrace(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
