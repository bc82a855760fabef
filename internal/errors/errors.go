// Package errors defines the build failure taxonomy for docserve and the
// formatting used to surface failures in connected browsers.
package errors

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// FailureClass distinguishes how a build attempt failed.
type FailureClass int

const (
	// ClassExit means the builder ran and exited non-zero.
	ClassExit FailureClass = iota
	// ClassSpawn means the builder process could not be started at all,
	// typically because the binary is missing from PATH.
	ClassSpawn
)

// String returns the string representation of the failure class
func (c FailureClass) String() string {
	switch c {
	case ClassExit:
		return "exit"
	case ClassSpawn:
		return "spawn"
	default:
		return "unknown"
	}
}

// BuildError represents a failed documentation build attempt
type BuildError struct {
	Class      FailureClass
	Command    string
	ExitCode   int
	Output     string
	Generation uint64
	Timestamp  time.Time
	Err        error
}

// Error implements the error interface
func (be *BuildError) Error() string {
	switch be.Class {
	case ClassSpawn:
		return fmt.Sprintf("could not start builder %q: %v", be.Command, be.Err)
	default:
		return fmt.Sprintf("builder %q failed with exit code %d", be.Command, be.ExitCode)
	}
}

// Unwrap returns the underlying error
func (be *BuildError) Unwrap() error {
	return be.Err
}

// NewExitFailure creates a BuildError for a builder that exited non-zero.
func NewExitFailure(command string, exitCode int, output string) *BuildError {
	return &BuildError{
		Class:     ClassExit,
		Command:   command,
		ExitCode:  exitCode,
		Output:    output,
		Timestamp: time.Now(),
	}
}

// NewSpawnFailure creates a BuildError for a builder that could not be
// started. The spawn error is preserved so it can be distinguished from a
// normal non-zero exit in user-facing output.
func NewSpawnFailure(command string, err error) *BuildError {
	return &BuildError{
		Class:     ClassSpawn,
		Command:   command,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Summary returns a single-line description suitable for logs and the
// build status endpoint.
func (be *BuildError) Summary() string {
	if be.Class == ClassSpawn {
		return fmt.Sprintf("builder not runnable: %v (is %q installed?)", be.Err, commandName(be.Command))
	}
	return fmt.Sprintf("builder exited with code %d", be.ExitCode)
}

// FormatForBrowser renders the failure as an HTML fragment for the error
// overlay shown in connected viewers.
func (be *BuildError) FormatForBrowser() string {
	var sb strings.Builder
	sb.WriteString(`<div class="docserve-error-overlay">`)
	sb.WriteString(`<h2>Documentation build failed</h2>`)
	sb.WriteString(fmt.Sprintf(`<p>%s</p>`, html.EscapeString(be.Summary())))
	if out := strings.TrimSpace(be.Output); out != "" {
		sb.WriteString(`<pre>`)
		sb.WriteString(html.EscapeString(out))
		sb.WriteString(`</pre>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func commandName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	return fields[0]
}
