package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel         string // Log verbosity level
	concurrencyLimit int    // Overrides the manifest's concurrency_limit when > 0
	handlerExe       string // Program run on each job's output handler file
	ledgerPath       string // SQLite run ledger; empty disables recording
	metricsFile      string // Prometheus textfile written after the batch; empty disables
	generateOnly     bool   // Write inputs and manifests without dispatching
	defaultsPath     string // Optional host defaults file for unset flags
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "simbatch",
	Short: "Batch runner and parameter-sweep generator for cardiovascular simulations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&defaultsPath, "defaults", "", "YAML file with host defaults for concurrency, handler-exe, ledger and metrics-file")

	// Dispatch settings shared by every command that runs a batch
	for _, c := range []*cobra.Command{runCmd, sweepCmd, characterizeCmd} {
		c.Flags().IntVar(&concurrencyLimit, "concurrency", 0, "Maximum simultaneous simulations (0 uses the manifest value or CPUs-1)")
		c.Flags().StringVar(&handlerExe, "handler-exe", "", "Program invoked as <exe> <output_handler_file> <results_file> after the batch")
		c.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite file recording batch runs and job outcomes")
		c.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics for the batch to this textfile")
	}
	for _, c := range []*cobra.Command{sweepCmd, characterizeCmd} {
		c.Flags().BoolVar(&generateOnly, "generate-only", false, "Write simulation inputs and batch.json without running them")
	}

	rootCmd.AddCommand(runCmd, sweepCmd, characterizeCmd)
}
