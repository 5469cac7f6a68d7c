// Package lifecycle builds project images and keeps one container per
// project running, stopped or restarted on request.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RevCBH/shipyard/internal/container"
)

// Status is the observed state of a project's container.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusStopped Status = "STOPPED"
	// StatusPending is only reported for accepted asynchronous requests,
	// never observed from the engine.
	StatusPending Status = "PENDING"
	StatusError   Status = "ERROR"
)

// Operation is a lifecycle action on a project's container.
type Operation string

const (
	OpStart   Operation = "START"
	OpStop    Operation = "STOP"
	OpRestart Operation = "RESTART"
)

// ParseOperation accepts an operation name in any case.
func ParseOperation(name string) (Operation, error) {
	switch op := Operation(strings.ToUpper(strings.TrimSpace(name))); op {
	case OpStart, OpStop, OpRestart:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
}

// Info is the transient outcome of an operation.
type Info struct {
	Status    Status `json:"status"`
	ServerURL string `json:"server_url,omitempty"`
}

// Result pairs the reported Info with the cause of an ERROR status.
type Result struct {
	Info Info
	Err  error
}

// Kind classifies Err; it is empty for successful results.
func (r Result) Kind() ErrorKind {
	return KindOf(r.Err)
}

func errorResult(err error) Result {
	return Result{Info: Info{Status: StatusError}, Err: err}
}

// ErrorKind groups operation failures by what the caller can do about them.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindEngine        ErrorKind = "engine"
	KindDiscovery     ErrorKind = "discovery"
	KindNotFound      ErrorKind = "not_found"
	KindTimeout       ErrorKind = "timeout"
	KindInternal      ErrorKind = "internal"
)

var (
	// ErrRecipeMissing means the project has no Dockerfile to build.
	ErrRecipeMissing = errors.New("build recipe missing")
	// ErrUnknownStack means the stack could not be detected.
	ErrUnknownStack = errors.New("unknown stack")
	// ErrUnknownOperation is returned for operations outside START, STOP
	// and RESTART.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrEngine wraps non-zero exits from the container engine.
	ErrEngine = errors.New("container engine failure")

	// ErrDiscovery means a port or status could not be determined.
	ErrDiscovery = errors.New("discovery failed")
	// ErrNotRunning is returned by queries that need a running container.
	ErrNotRunning = errors.New("container not running")

	// ErrProjectNotFound means the repository does not know the project.
	ErrProjectNotFound = errors.New("project not found")
	// ErrNoContainer means the project has no container to act on.
	ErrNoContainer = errors.New("no container")

	// ErrTimeout is returned by Await when the caller stops waiting.
	ErrTimeout = errors.New("operation timed out")

	// ErrClosed is returned for operations submitted after Close.
	ErrClosed = errors.New("lifecycle manager closed")
)

// KindOf classifies err. It returns "" for nil.
func KindOf(err error) ErrorKind {
	var exitErr *container.ExitError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrRecipeMissing), errors.Is(err, ErrUnknownStack), errors.Is(err, ErrUnknownOperation):
		return KindConfiguration
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrNoContainer):
		return KindNotFound
	case errors.Is(err, ErrDiscovery), errors.Is(err, ErrNotRunning):
		return KindDiscovery
	case errors.Is(err, ErrEngine), errors.As(err, &exitErr):
		return KindEngine
	default:
		return KindInternal
	}
}
