package pkg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/projectdiscovery/gologger"
)

// CommandResult holds the captured output of a finished command
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs line oriented diagnostic commands.
// Run returns an error only when the command could not be executed or the
// context ended; a non-zero exit status is reported through ExitCode.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (*CommandResult, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// DefaultRunner is the runner used when none is injected
var DefaultRunner CommandRunner = ExecRunner{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	gologger.Debug().Msgf("exec: %s %s", name, strings.Join(args, " "))

	err := cmd.Run()
	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	// a killed process also surfaces as an exit error, so check the context first
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}

	return result, nil
}

// CommandFunc adapts a function to CommandRunner
type CommandFunc func(ctx context.Context, name string, args ...string) (*CommandResult, error)

func (f CommandFunc) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	return f(ctx, name, args...)
}
