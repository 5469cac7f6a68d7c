package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/RevCBH/shipyard/internal/container"
)

// StubRunner is a container.Runner that replays canned responses keyed by
// the space-joined argument list.
type StubRunner struct {
	mu       sync.Mutex
	stubs    map[string][]stubResponse
	defaults map[string]stubResponse
	calls    []string
}

type stubResponse struct {
	out string
	err error
}

func NewStubRunner() *StubRunner {
	return &StubRunner{
		stubs:    make(map[string][]stubResponse),
		defaults: make(map[string]stubResponse),
	}
}

// Stub queues a one-shot response for args.
func (s *StubRunner) Stub(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[args] = append(s.stubs[args], stubResponse{out: out, err: err})
}

// StubDefault sets the response for args once queued stubs are exhausted.
func (s *StubRunner) StubDefault(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[args] = stubResponse{out: out, err: err}
}

// StubExit queues a non-zero exit with the given stderr.
func (s *StubRunner) StubExit(args string, code int, stderr string) {
	s.Stub(args, "", &container.ExitError{Args: strings.Fields(args), Code: code, Stderr: stderr})
}

func (s *StubRunner) Run(ctx context.Context, args ...string) (string, error) {
	key := strings.Join(args, " ")
	s.mu.Lock()
	s.calls = append(s.calls, key)
	queue := s.stubs[key]
	if len(queue) == 0 {
		if resp, ok := s.defaults[key]; ok {
			s.mu.Unlock()
			return resp.out, resp.err
		}
		s.mu.Unlock()
		return "", fmt.Errorf("unexpected engine call: %s", key)
	}
	resp := queue[0]
	s.stubs[key] = queue[1:]
	s.mu.Unlock()
	return resp.out, resp.err
}

func (s *StubRunner) RunCombined(ctx context.Context, args ...string) (string, error) {
	return s.Run(ctx, args...)
}

// Calls returns every invocation in order.
func (s *StubRunner) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *StubRunner) CallsFor(args ...string) int {
	key := strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call == key {
			count++
		}
	}
	return count
}

var _ container.Runner = (*StubRunner)(nil)
