package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxOutputInError caps how much command output is quoted in an error.
const maxOutputInError = 2048

// Runner runs a program and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Env is appended to the inherited environment.
	Env []string
}

// Run executes name with args. A non-zero exit includes the tail of the output in the error.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return output.Bytes(), &Error{
			Command: strings.Join(append([]string{name}, args...), " "),
			Output:  tail(output.String()),
			Err:     err,
		}
	}

	return output.Bytes(), nil
}

// Error describes a failed command.
type Error struct {
	Command string
	Output  string
	Err     error
}

func (e *Error) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}

	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Output)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status of a failed command, or -1.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

func tail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) > maxOutputInError {
		output = "..." + output[len(output)-maxOutputInError:]
	}

	return output
}
