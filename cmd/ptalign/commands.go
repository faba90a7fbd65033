package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/ptalign/pkg/eventlog"
	"github.com/logflow/ptalign/pkg/tui"
)

var variantsTop int

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "List the variants of an event log",
	Long: `List the distinct activity sequences of an event log with their case counts,
most frequent first.

Examples:
  ptalign variants --log orders.xes
  ptalign variants --log orders.csv --activity-key org:resource --top 10`,
	RunE: runVariants,
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Validate a process tree and print its labels",
	RunE:  runTree,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	variantsCmd.Flags().StringVarP(&logFile, "log", "l", "", "Event log path (required)")
	variantsCmd.Flags().StringVar(&activityKey, "activity-key", "", "Event attribute used as activity (default: concept:name)")
	variantsCmd.Flags().StringVar(&caseColumn, "case-column", "", "Case column of tabular logs")
	variantsCmd.Flags().IntVar(&variantsTop, "top", 0, "Show only the N most frequent variants")
	variantsCmd.MarkFlagRequired("log")

	addTreeFlag(treeCmd)

	configCmd.AddCommand(configShowCmd)
}

func runVariants(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := eventlog.Load(ctx, logFile, logOptions())
	if err != nil {
		return err
	}

	key := cfg.Alignment.ActivityKey
	if activityKey != "" {
		key = activityKey
	}
	variants := sortByCount(eventlog.LogVariants(l, key))
	if variantsTop > 0 && len(variants) > variantsTop {
		variants = variants[:variantsTop]
	}
	tui.PrintVariants(os.Stdout, variants)
	return nil
}

// sortByCount orders variants by descending case count, keeping first
// appearance order for ties.
func sortByCount(vs []*eventlog.Variant) []*eventlog.Variant {
	out := append([]*eventlog.Variant(nil), vs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count() > out[j].Count()
	})
	return out
}

func runTree(cmd *cobra.Command, args []string) error {
	tree, err := loadTree(treeFlag)
	if err != nil {
		return err
	}
	tui.PrintTree(os.Stdout, tree)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := cfgManager.Marshal()
	if err != nil {
		return err
	}
	if paths := cfgManager.GetPaths(); len(paths) > 0 {
		fmt.Printf("# loaded from: %s\n", strings.Join(paths, ", "))
	}
	fmt.Print(string(data))
	return nil
}
