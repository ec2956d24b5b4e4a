package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/batch/dispatch"
	"github.com/myovent/simbatch/batch/ledger"
	"github.com/myovent/simbatch/batch/postprocess"
)

// runOptions are the dispatch settings taken from flags.
type runOptions struct {
	Concurrency int
	HandlerExe  string
	LedgerPath  string
	MetricsFile string
}

// optionsFromFlags collects the dispatch flags of cmd, filling unset ones
// from the --defaults file when one is given.
func optionsFromFlags(cmd *cobra.Command) (runOptions, error) {
	opts := runOptions{
		Concurrency: concurrencyLimit,
		HandlerExe:  handlerExe,
		LedgerPath:  ledgerPath,
		MetricsFile: metricsFile,
	}
	if defaultsPath == "" {
		return opts, nil
	}
	d, err := loadDefaults(defaultsPath)
	if err != nil {
		return runOptions{}, err
	}
	d.apply(cmd, &opts)
	return opts, nil
}

// batchFailedError reports a batch that drained with failed jobs.
type batchFailedError struct {
	Failed, Total int
}

func (e *batchFailedError) Error() string {
	return fmt.Sprintf("%d of %d jobs failed", e.Failed, e.Total)
}

// executeManifest dispatches m, prints the per-job report to w, hands
// results to output handlers and records the run. It returns a
// *batchFailedError when any job failed.
func executeManifest(ctx context.Context, m *batch.Manifest, opts runOptions, w io.Writer) error {
	if err := m.Validate(); err != nil {
		return err
	}
	limit := m.ConcurrencyLimit
	if opts.Concurrency > 0 {
		limit = opts.Concurrency
	}
	var reg *prometheus.Registry
	var metrics *dispatch.Metrics
	if opts.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		metrics = dispatch.NewMetrics(reg)
	}
	d, err := dispatch.New(dispatch.Config{
		Executable:       m.Executable,
		ConcurrencyLimit: limit,
		Metrics:          metrics,
	})
	if err != nil {
		return err
	}

	started := time.Now()
	outcomes, err := d.Run(ctx, m.Jobs)
	if err != nil {
		return err
	}
	finished := time.Now()
	if err := dispatch.WriteReport(w, outcomes); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if opts.HandlerExe != "" {
		results := postprocess.Handoff(ctx, outcomes, postprocess.ExecHandler{Executable: opts.HandlerExe}, postprocess.Options{})
		if n := postprocess.Failed(results); n > 0 {
			logrus.Warnf("%d of %d output handlers failed", n, len(results))
		}
	} else if n := declaredHandlers(m.Jobs); n > 0 {
		logrus.Warnf("Skipped %d output handler declarations: no handler executable set (--handler-exe or handler_exe in --defaults)", n)
	}
	if opts.LedgerPath != "" {
		if err := record(ctx, opts.LedgerPath, m, d.Limit(), started, finished, outcomes); err != nil {
			return err
		}
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	if s := dispatch.Summarize(outcomes); s.Failed > 0 {
		return &batchFailedError{Failed: s.Failed, Total: s.Total}
	}
	return nil
}

// declaredHandlers counts jobs that name an output handler file.
func declaredHandlers(jobs []batch.Job) int {
	n := 0
	for _, j := range jobs {
		if j.OutputHandlerPath != "" {
			n++
		}
	}
	return n
}

func record(ctx context.Context, path string, m *batch.Manifest, limit int, started, finished time.Time, outcomes []dispatch.Outcome) error {
	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	id, err := store.RecordRun(ctx, ledger.Run{
		Manifest:    m.File,
		Executable:  m.Executable,
		Concurrency: limit,
		StartedAt:   started,
		FinishedAt:  finished,
	}, outcomes)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	logrus.Infof("Recorded run %s in %s", id, path)
	return nil
}
