// Package dispatch runs batch jobs as external processes under a
// concurrency cap.
//
// Jobs start in list order as slots free up; they finish in whatever order
// their processes take. A failing job is recorded in its Outcome and never
// affects its siblings. Run returns only once every job is terminal.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/myovent/simbatch/batch"
)

// DefaultConcurrency is the host's parallel capacity minus one unit reserved
// for the orchestrating process, and never less than one.
func DefaultConcurrency() int {
	return max(runtime.NumCPU()-1, 1)
}

// Config configures a Dispatcher.
type Config struct {
	Executable       string   // absolute path of the simulation executable
	ConcurrencyLimit int      // 0 selects DefaultConcurrency()
	Launcher         Launcher // nil selects ExecLauncher{}
	Metrics          *Metrics // optional
}

// Dispatcher runs jobs for one executable.
type Dispatcher struct {
	cfg Config
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Executable == "" {
		return nil, errors.New("dispatcher needs an executable")
	}
	if cfg.ConcurrencyLimit < 0 {
		return nil, fmt.Errorf("concurrency limit must be positive, got %d", cfg.ConcurrencyLimit)
	}
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = DefaultConcurrency()
	}
	if cfg.Launcher == nil {
		cfg.Launcher = ExecLauncher{}
	}
	return &Dispatcher{cfg: cfg}, nil
}

// Limit is the effective concurrency cap.
func (d *Dispatcher) Limit() int { return d.cfg.ConcurrencyLimit }

// Run executes every job and returns one Outcome per job, in job order.
//
// At most Limit() processes run at once. A worker slot is acquired before a
// job starts and released when its process exits; the wait for a slot is a
// blocking semaphore acquire. If ctx ends, no further jobs are started (they
// are reported Failed/Canceled) and running ones are left to the Launcher.
func (d *Dispatcher) Run(ctx context.Context, jobs []batch.Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))
	var pending deque.Deque[int]
	for i, j := range jobs {
		if err := j.Validate(); err != nil {
			return nil, err
		}
		outcomes[i] = Outcome{Job: j, State: Pending}
		pending.PushBack(i)
	}

	logrus.Infof("Running batch of %d jobs using %d workers", len(jobs), d.cfg.ConcurrencyLimit)
	sem := semaphore.NewWeighted(int64(d.cfg.ConcurrencyLimit))
	var wg sync.WaitGroup
	for pending.Len() > 0 && ctx.Err() == nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		o := &outcomes[pending.PopFront()]
		o.State = Running
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			d.runOne(ctx, o)
		}()
	}
	wg.Wait()

	for pending.Len() > 0 {
		o := &outcomes[pending.PopFront()]
		o.State = Failed
		o.Failure = Canceled
		o.Err = ctx.Err()
		d.cfg.Metrics.jobFinished(o, false)
	}
	s := Summarize(outcomes)
	logrus.Infof("Batch drained: %d succeeded, %d failed", s.Succeeded, s.Failed)
	return outcomes, nil
}

// runOne runs a single job and records its terminal state in o. It only
// writes to o, so workers share nothing but the semaphore.
func (d *Dispatcher) runOne(ctx context.Context, o *Outcome) {
	log := logrus.WithFields(logrus.Fields{"job": o.Job.Sequence, "model": o.Job.ModelPath})
	o.Started = time.Now()

	resultsDir := filepath.Dir(o.Job.ResultsPath)
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		o.Finished = time.Now()
		o.State, o.Failure, o.Err = Failed, IOError, fmt.Errorf("creating results dir: %w", err)
		log.WithError(o.Err).Error("Job failed before start")
		d.cfg.Metrics.jobFinished(o, false)
		return
	}

	log.Debug("Starting job")
	d.cfg.Metrics.jobStarted()
	err := d.cfg.Launcher.Launch(ctx, d.cfg.Executable, o.Job.Args())
	o.Finished = time.Now()
	switch {
	case err == nil:
		o.State = Succeeded
		log.WithField("duration", o.Duration()).Info("Job succeeded")
	default:
		o.State, o.Err = Failed, err
		o.Failure = classify(err, &o.ExitCode)
		log.WithError(err).WithField("failure", o.Failure).Warn("Job failed")
	}
	d.cfg.Metrics.jobFinished(o, true)
}

func classify(err error, exitCode *int) FailureKind {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		*exitCode = exitErr.Code
		return ProcessFailure
	}
	var startErr *StartError
	if errors.As(err, &startErr) {
		return StartFailure
	}
	return ProcessFailure
}
