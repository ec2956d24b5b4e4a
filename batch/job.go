package batch

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Job is one external simulation run: the four input/output files handed to
// the executable plus an optional output handler run after the batch drains.
// Jobs are immutable once built.
type Job struct {
	Sequence          int // 1-based; also passed to the executable as its last argument
	ModelPath         string
	OptionsPath       string
	ProtocolPath      string
	ResultsPath       string
	OutputHandlerPath string // optional
}

// Args returns the executable's argument vector for this job (without the
// executable itself): model, options, protocol and results paths followed by
// the sequence number.
func (j Job) Args() []string {
	return []string{j.ModelPath, j.OptionsPath, j.ProtocolPath, j.ResultsPath, strconv.Itoa(j.Sequence)}
}

// Validate checks that the job is dispatchable.
func (j Job) Validate() error {
	if j.Sequence < 1 {
		return fmt.Errorf("job sequence must be positive, got %d", j.Sequence)
	}
	for _, f := range []struct{ name, path string }{
		{"model_path", j.ModelPath},
		{"options_path", j.OptionsPath},
		{"protocol_path", j.ProtocolPath},
		{"results_path", j.ResultsPath},
	} {
		if f.path == "" {
			return fmt.Errorf("job %d: %s is empty", j.Sequence, f.name)
		}
		if !filepath.IsAbs(f.path) {
			return fmt.Errorf("job %d: %s %q is not absolute", j.Sequence, f.name, f.path)
		}
	}
	return nil
}
