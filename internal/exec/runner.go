package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultMaxOutput caps each captured stream.
const DefaultMaxOutput = 1 << 20

// ShellRunner implements CommandRunner with os/exec and "sh -c".
type ShellRunner struct {
	maxOutput int
}

// NewRunner creates a ShellRunner. maxOutput <= 0 uses DefaultMaxOutput.
func NewRunner(maxOutput int) *ShellRunner {
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &ShellRunner{maxOutput: maxOutput}
}

// Run executes cmd.Script through the shell.
func (r *ShellRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Script == "" {
		return Result{}, errors.New("empty command")
	}
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, "sh", "-c", cmd.Script)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	stdout := &cappedBuffer{max: r.maxOutput}
	stderr := &cappedBuffer{max: r.maxOutput}
	c.Stdout = stdout
	c.Stderr = stderr
	// Children of the shell may hold the pipes open after it is killed.
	c.WaitDelay = 2 * time.Second

	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("command interrupted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run command: %w", err)
	}
	return res, nil
}

// cappedBuffer keeps the first max bytes written and discards the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = len(p) > 0 || b.truncated
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string { return b.buf.String() }

var _ CommandRunner = (*ShellRunner)(nil)
