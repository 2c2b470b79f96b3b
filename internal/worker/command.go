package worker

import (
	"context"
	"fmt"
	"strings"

	iexec "github.com/ShayCichocki/nexus/internal/exec"
)

// CommandType is the worker type of CommandWorker.
const CommandType = "command"

// CommandWorker runs the task description as a shell command.
// It is only registered when explicitly allowed in configuration.
type CommandWorker struct {
	id     string
	runner iexec.CommandRunner
	dir    string
}

// NewCommandWorker creates a command worker running in dir.
func NewCommandWorker(runner iexec.CommandRunner, dir string) *CommandWorker {
	return &CommandWorker{id: newID(CommandType), runner: runner, dir: dir}
}

// CommandFactory returns a Factory producing command workers.
func CommandFactory(runner iexec.CommandRunner, dir string) Factory {
	return func(string) (Worker, error) {
		return NewCommandWorker(runner, dir), nil
	}
}

func (w *CommandWorker) ID() string   { return w.id }
func (w *CommandWorker) Type() string { return CommandType }

// Execute runs the description. A non-zero exit is a task failure carrying stderr.
func (w *CommandWorker) Execute(ctx context.Context, in Input) (string, error) {
	script := strings.TrimSpace(in.Task.Description)
	if script == "" {
		return "", fmt.Errorf("task %s has no command", in.Task.ID)
	}

	res, err := w.runner.Run(ctx, iexec.Command{Script: script, Dir: w.dir})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return "", fmt.Errorf("command exited with status %d: %s", res.ExitCode, msg)
	}
	return strings.TrimSpace(res.Stdout), nil
}
