// ptalign computes optimal alignments between event logs and process trees.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logflow/ptalign/pkg/config"
	"github.com/logflow/ptalign/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
	verbose    bool
)

// Set up by the root command before any subcommand runs.
var (
	cfgManager *config.Manager
	cfg        *config.Config
	logger     *slog.Logger
	runID      string
	shutdown   = func(context.Context) error { return nil }
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ptalign",
	Short: "ptalign - optimal alignments of event logs against process trees",
	Long: `ptalign explains every trace of an event log by the cheapest run of a process tree,
reporting synchronous, model and log moves, the alignment cost and the fitness.

Process trees use the textual notation ->( ), X( ), +( ), *( ), O( ) with quoted labels
and tau for silent steps, e.g. "->( 'register', X( 'approve', tau ), 'close' )".`,
	Version:            fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: /etc/ptalign, ~/.ptalign, ./.ptalign.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(alignCmd)
	rootCmd.AddCommand(variantsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads the configuration and installs logging, tracing and metrics.
func setup(cmd *cobra.Command, _ []string) error {
	cfgManager = config.NewManager()
	var err error
	if configFile != "" {
		err = cfgManager.LoadFrom(configFile)
	} else {
		err = cfgManager.Load()
	}
	if err != nil {
		return err
	}
	cfg = cfgManager.Get()

	if logLevel != "" {
		cfg.Telemetry.LogLevel = logLevel
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	if logFormat != "" {
		cfg.Telemetry.LogFormat = logFormat
	}

	runID = telemetry.NewRunID()
	l, err := telemetry.NewLogger(os.Stderr, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	if err != nil {
		return err
	}
	logger = l.With("run_id", runID)
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err = telemetry.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		go func() {
			if err := telemetry.ServeMetrics(ctx, addr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	return shutdown(context.Background())
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
