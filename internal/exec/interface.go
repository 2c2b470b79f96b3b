// Package exec runs shell commands for the command worker.
package exec

import (
	"context"
	"time"
)

// Command is one shell invocation.
type Command struct {
	// Script is passed to "sh -c".
	Script string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the parent environment.
	Env []string
	// Timeout bounds the run; zero means only ctx applies.
	Timeout time.Duration
}

// Result is the outcome of a command that started.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	// Truncated is set when output exceeded the runner's limit.
	Truncated bool
}

// CommandRunner runs commands. Tests substitute a fake.
type CommandRunner interface {
	// Run returns an error only when the command could not run to completion
	// (not found, killed, timed out). A non-zero exit is reported in Result.
	Run(ctx context.Context, cmd Command) (Result, error)
}
