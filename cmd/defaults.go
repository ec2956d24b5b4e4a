package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Defaults represents a host defaults file. Each value applies only when the
// matching flag was not given on the command line.
// All keys must be listed to satisfy KnownFields(true) strict parsing.
type Defaults struct {
	Concurrency int    `yaml:"concurrency"`
	HandlerExe  string `yaml:"handler_exe"`
	Ledger      string `yaml:"ledger"`
	MetricsFile string `yaml:"metrics_file"`
}

// loadDefaults parses a defaults file with strict field checking.
func loadDefaults(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("reading defaults file: %w", err)
	}
	var d Defaults
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		return Defaults{}, fmt.Errorf("parsing defaults file %s: %w", path, err)
	}
	if d.Concurrency < 0 {
		return Defaults{}, fmt.Errorf("defaults file %s: concurrency must be positive, got %d", path, d.Concurrency)
	}
	return d, nil
}

// apply fills opts from d for every flag of cmd the user left unset.
func (d Defaults) apply(cmd *cobra.Command, opts *runOptions) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if !changed("concurrency") && d.Concurrency > 0 {
		opts.Concurrency = d.Concurrency
	}
	if !changed("handler-exe") && d.HandlerExe != "" {
		opts.HandlerExe = d.HandlerExe
	}
	if !changed("ledger") && d.Ledger != "" {
		opts.LedgerPath = d.Ledger
	}
	if !changed("metrics-file") && d.MetricsFile != "" {
		opts.MetricsFile = d.MetricsFile
	}
}
