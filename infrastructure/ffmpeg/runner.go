package ffmpeg

import (
	"context"
	"io"
	"os/exec"
)

// Command describes one external process invocation
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// CommandRunner defines the interface for running external commands
// This allows mocking exec.Command in tests
type CommandRunner interface {
	// LookPath resolves an executable name to a path
	LookPath(name string) (string, error)

	// Run executes a command to completion, streaming its output
	Run(ctx context.Context, cmd Command) error

	// Output executes a command and returns its stdout
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner is the production implementation using os/exec
type ExecCommandRunner struct{}

// LookPath implements CommandRunner
func (r *ExecCommandRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes a command and returns any error
func (r *ExecCommandRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd.Run()
}

// Output executes a command and returns its output
func (r *ExecCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// Ensure ExecCommandRunner implements CommandRunner
var _ CommandRunner = (*ExecCommandRunner)(nil)
