package dispatch

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/myovent/simbatch/batch"
)

// State is a job's position in its lifecycle:
// Pending → Running → {Succeeded, Failed}. Terminal states are final.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s is Succeeded or Failed.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

// FailureKind classifies why a job failed.
type FailureKind int

const (
	NoFailure FailureKind = iota
	// ProcessFailure: the executable exited non-zero or was killed by a signal.
	ProcessFailure
	// StartFailure: the executable could not be started.
	StartFailure
	// IOError: the job's results directory could not be prepared.
	IOError
	// Canceled: the batch context ended before the job was started.
	Canceled
)

func (k FailureKind) String() string {
	switch k {
	case NoFailure:
		return ""
	case ProcessFailure:
		return "process-failure"
	case StartFailure:
		return "start-failure"
	case IOError:
		return "io-error"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// Outcome is the record of one job's run.
type Outcome struct {
	Job      batch.Job
	State    State
	Failure  FailureKind
	ExitCode int // meaningful for ProcessFailure; -1 when killed by a signal
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration is the wall time the job spent running.
func (o Outcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Finished.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

// Summary counts outcomes by terminal state.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Summarize tallies outcomes.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.State {
		case Succeeded:
			s.Succeeded++
		case Failed:
			s.Failed++
		}
	}
	return s
}

// WriteReport prints one line per job: sequence, state, failure kind and,
// for failures, the error.
func WriteReport(w io.Writer, outcomes []Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATE\tFAILURE\tDURATION\tDETAIL")
	for _, o := range outcomes {
		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.Job.Sequence, o.State, o.Failure,
			o.Duration().Round(time.Millisecond), detail)
	}
	s := Summarize(outcomes)
	fmt.Fprintf(tw, "\n%d jobs: %d succeeded, %d failed\n", s.Total, s.Succeeded, s.Failed)
	return tw.Flush()
}
