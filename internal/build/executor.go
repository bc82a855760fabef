// Package build runs the external documentation builder and owns the
// build state machine: one build at a time, a strictly increasing
// generation counter, and coalescing of rebuild requests that arrive while
// a build is in flight.
package build

import (
	"context"
	stderrors "errors"
	"os/exec"
	"strings"
	"time"

	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/logging"
)

// Invocation describes how to run the documentation builder.
type Invocation struct {
	Command string
	Args    []string
	Dir     string
}

// CommandLine returns the invocation as a display string.
func (inv Invocation) CommandLine() string {
	return strings.TrimSpace(inv.Command + " " + strings.Join(inv.Args, " "))
}

// Result is the outcome of one builder run.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
	// Failure is nil when the builder exited zero.
	Failure *errors.BuildError
}

// OK reports whether the builder exited successfully.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Executor runs the documentation builder as a child process and captures
// its combined output and exit status. The builder is opaque: no timeout
// is applied, a build may run indefinitely.
type Executor struct {
	invocation Invocation
	log        logging.Logger
}

// NewExecutor creates an executor for the given builder invocation.
func NewExecutor(invocation Invocation, log logging.Logger) *Executor {
	return &Executor{
		invocation: invocation,
		log:        log.WithComponent("executor"),
	}
}

// Run executes the builder once. Cancelling ctx kills the child process
// best-effort. A process that could not be spawned at all is classified
// separately from a non-zero exit so the two are distinguishable in
// user-facing output.
func (e *Executor) Run(ctx context.Context) Result {
	start := time.Now()
	commandLine := e.invocation.CommandLine()

	e.log.Debug(ctx, "running builder", "command", commandLine, "dir", e.invocation.Dir)

	cmd := exec.CommandContext(ctx, e.invocation.Command, e.invocation.Args...)
	cmd.Dir = e.invocation.Dir

	output, err := cmd.CombinedOutput()
	result := Result{
		Output:   string(output),
		Duration: time.Since(start),
	}

	if err == nil {
		return result
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		result.Failure = errors.NewExitFailure(commandLine, result.ExitCode, result.Output)
		return result
	}

	// Anything other than a non-zero exit means the process never ran:
	// binary missing, permission denied, bad working directory.
	result.ExitCode = -1
	result.Failure = errors.NewSpawnFailure(commandLine, err)
	return result
}
