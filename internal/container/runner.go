package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes container engine commands.
// Run returns stdout only; RunCombined interleaves stdout and stderr, which
// is what `logs` needs. A non-zero exit is reported as *ExitError.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
	RunCombined(ctx context.Context, args ...string) (string, error)
}

// ExitError is returned when an engine command exits with a non-zero status.
type ExitError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit code %d", strings.Join(e.Args, " "), e.Code)
	}
	return fmt.Sprintf("%s: exit code %d: %s", strings.Join(e.Args, " "), e.Code, msg)
}

// IsNotFound reports whether err is an engine failure about a missing
// container, image or network. Docker and Podman word this differently.
func IsNotFound(err error) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	msg := strings.ToLower(exitErr.Stderr)
	return strings.Contains(msg, "no such") || strings.Contains(msg, "not found")
}

// IsAlreadyExists reports whether err is an engine failure about a resource
// that already exists.
func IsAlreadyExists(err error) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return strings.Contains(strings.ToLower(exitErr.Stderr), "already exists")
}

// execRunner runs the engine binary via os/exec.
type execRunner struct {
	binary string
}

// NewRunner returns a Runner that invokes binary ("docker" or "podman").
func NewRunner(binary string) Runner {
	return &execRunner{binary: binary}
}

func (r *execRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", r.wrap(args, err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *execRunner) RunCombined(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", r.wrap(args, err, string(output))
	}
	return string(output), nil
}

func (r *execRunner) wrap(args []string, err error, stderr string) error {
	full := append([]string{r.binary}, args...)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Args: full, Code: exitErr.ExitCode(), Stderr: stderr}
	}
	return fmt.Errorf("%s: %w", strings.Join(full, " "), err)
}
