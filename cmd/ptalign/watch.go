package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/logflow/ptalign/pkg/cache"
	"github.com/logflow/ptalign/pkg/eventlog"
	"github.com/logflow/ptalign/pkg/tui"
	"github.com/logflow/ptalign/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-align an event log whenever it or the tree file changes",
	Long: `Align an event log, then watch the log (and the tree, when given as a file) and
align again after every change. Variants seen before are answered from the store,
so only new behaviour is searched.

Examples:
  ptalign watch --tree model.ptree --log live.csv --output results.jsonl`,
	RunE: runWatch,
}

func init() {
	addTreeFlag(watchCmd)
	watchCmd.Flags().StringVarP(&logFile, "log", "l", "", "Event log path (required)")
	watchCmd.Flags().IntVar(&cores, "cores", 0, "Variants aligned in parallel (0 = auto, 1 = sequential)")
	watchCmd.Flags().BoolVar(&noReduction, "no-reduction", false, "Align against the full tree for every variant")
	watchCmd.Flags().StringVar(&activityKey, "activity-key", "", "Event attribute used as activity")
	watchCmd.Flags().StringVar(&caseColumn, "case-column", "", "Case column of tabular logs")
	watchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write results to a .jsonl or .parquet file")
	watchCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address for the persistent alignment store")
	watchCmd.Flags().IntVar(&maxStates, "max-states", 0, "Give up on a variant after this many search states")
	watchCmd.MarkFlagRequired("log")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	if store == nil {
		store = cache.NewMemoryStore()
	}

	opts := alignOptions(cmd)
	opts.Store = store

	realign := func(ctx context.Context) error {
		tree, err := loadTree(treeFlag)
		if err != nil {
			return err
		}
		l, err := eventlog.Load(ctx, logFile, logOptions())
		if err != nil {
			return err
		}
		summary, err := alignAndExport(ctx, tree, l, opts)
		if summary != nil {
			tui.PrintSummary(os.Stdout, summary)
		}
		return err
	}

	if err := realign(ctx); err != nil {
		logger.Error("alignment failed", "error", err)
	}

	w, err := watch.NewWatcher(logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Watch(logFile); err != nil {
		return err
	}
	if info, err := os.Stat(treeFlag); err == nil && !info.IsDir() {
		if err := w.Watch(treeFlag); err != nil {
			return err
		}
	}

	w.OnChange = func(ctx context.Context, path string) error {
		logger.Info("re-aligning", "changed", filepath.Base(path))
		return realign(ctx)
	}

	err = w.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
