// Package postprocess hands finished jobs to their output handlers.
//
// A job may name an output handler file describing how its results should be
// summarized. Once the batch has drained, every such job is handed, in job
// order, to a Handler. Handler failures are recorded per job and never stop
// the remaining handoffs.
package postprocess

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/batch/dispatch"
)

// Handler processes one job's results according to its handler file.
type Handler interface {
	Handle(ctx context.Context, handlerPath, resultsPath string) error
}

// ExecHandler runs an external program as
//
//	<Executable> <handler_path> <results_path>
type ExecHandler struct {
	Executable string
	Launcher   dispatch.Launcher // nil selects dispatch.ExecLauncher{}
}

// Handle implements Handler.
func (h ExecHandler) Handle(ctx context.Context, handlerPath, resultsPath string) error {
	if h.Executable == "" {
		return errors.New("no output handler executable configured")
	}
	l := h.Launcher
	if l == nil {
		l = dispatch.ExecLauncher{}
	}
	return l.Launch(ctx, h.Executable, []string{handlerPath, resultsPath})
}

// Result is the outcome of one handoff.
type Result struct {
	Job batch.Job
	Err error
}

// Options selects which jobs are handed off.
type Options struct {
	// SucceededOnly skips jobs whose simulation failed.
	SucceededOnly bool
}

// Handoff passes every job carrying an OutputHandlerPath to h and returns one
// Result per handoff attempted, in job order.
func Handoff(ctx context.Context, outcomes []dispatch.Outcome, h Handler, opts Options) []Result {
	var results []Result
	for _, o := range outcomes {
		if o.Job.OutputHandlerPath == "" {
			continue
		}
		if opts.SucceededOnly && o.State != dispatch.Succeeded {
			logrus.Debugf("Skipping output handler for failed job %d", o.Job.Sequence)
			continue
		}
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Job: o.Job, Err: err})
			continue
		}
		err := h.Handle(ctx, o.Job.OutputHandlerPath, o.Job.ResultsPath)
		if err != nil {
			err = fmt.Errorf("output handler for job %d: %w", o.Job.Sequence, err)
			logrus.WithField("handler", o.Job.OutputHandlerPath).Warn(err)
		}
		results = append(results, Result{Job: o.Job, Err: err})
	}
	return results
}

// Failed counts handoffs that returned an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
