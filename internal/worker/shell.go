package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Runner executes a job's command and reports success or failure along
// with whatever output the command produced. Any non-nil error is treated
// uniformly as an execution failure by the outcome logic.
type Runner interface {
	Run(ctx context.Context, command string) (output string, err error)
}

// ShellRunner runs commands through /bin/sh so the usual shell
// conveniences (pipes, redirects, &&) work as operators expect.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return string(out), fmt.Errorf("command timed out: %w", ctx.Err())
	}
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w", err)
	}
	return string(out), nil
}
