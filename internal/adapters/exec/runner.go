// Package exec runs external programs for the converter and setup steps.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	osexec "os/exec"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
)

// Runner implements domain.CommandRunner with os/exec.
type Runner struct{}

// NewRunner returns a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run starts cmd, waits for it and captures both output streams.
// A nonzero exit is reported through ExitCode, not the error.
func (r *Runner) Run(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	c := osexec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := domain.CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, fmt.Errorf("failed to run %s: %w", cmd.Path, err)
	}

	return result, nil
}

// LookPath resolves an executable name on PATH.
func LookPath(name string) (string, error) {
	path, err := osexec.LookPath(name)
	if err != nil {
		return "", domain.NewDomainError(domain.ErrToolNotFound.Code, name, err, false)
	}
	return path, nil
}
