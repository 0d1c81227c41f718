// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// Result holds the outcome of a finished command.
type Result struct {
	// ExitCode is the process exit status. Zero means success.
	ExitCode int
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
}

// Success reports whether the command exited with status zero.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command with separate stdout/stderr capture.
	// A non-zero exit is reported through Result.ExitCode, not as an error.
	// The error is non-nil only when the command could not be started or
	// the context ended before it finished.
	Run(ctx context.Context, workDir string, name string, args ...string) (*Result, error)

	// RunShell executes a shell command through "sh -c".
	RunShell(ctx context.Context, workDir string, command string) (*Result, error)
}
