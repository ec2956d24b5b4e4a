package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Launcher runs one external process to completion.
//
// Launch blocks until the process exits. It returns nil on exit status 0, an
// *ExitError when the process ran but failed, and any other error when the
// process could not be started (conventionally a *StartError).
type Launcher interface {
	Launch(ctx context.Context, exe string, args []string) error
}

// ExitError reports a process that exited non-zero or was killed.
type ExitError struct {
	Code int // -1 when terminated by a signal
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return "terminated by signal"
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// StartError reports a process that could not be started.
type StartError struct {
	Exe string
	Err error
}

func (e *StartError) Error() string { return fmt.Sprintf("starting %s: %v", e.Exe, e.Err) }

func (e *StartError) Unwrap() error { return e.Err }

// ExecLauncher starts processes with os/exec. Arguments are passed as an
// argument vector; no shell is involved, so paths with spaces or shell
// metacharacters reach the executable verbatim.
type ExecLauncher struct {
	Stdout io.Writer // nil discards
	Stderr io.Writer // nil discards
}

// Launch implements Launcher. Canceling ctx kills the process.
func (l ExecLauncher) Launch(ctx context.Context, exe string, args []string) error {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if err := cmd.Start(); err != nil {
		return &StartError{Exe: exe, Err: err}
	}
	err := cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("waiting for %s: %w", exe, err)
}
