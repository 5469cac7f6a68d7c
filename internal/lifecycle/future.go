package lifecycle

import (
	"context"
	"fmt"
)

// Future is the pending result of ExecuteOperation.
type Future struct {
	done   chan struct{}
	result Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed returns a Future already resolved to r.
func Completed(r Result) *Future {
	f := newFuture()
	f.resolve(r)
	return f
}

func (f *Future) resolve(r Result) {
	f.result = r
	close(f.done)
}

// Done is closed once the operation has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await waits for the operation or for ctx. Giving up yields an ERROR
// result of kind timeout; the operation itself keeps running.
func (f *Future) Await(ctx context.Context) Result {
	select {
	case <-f.done:
		return f.result
	default:
	}

	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return errorResult(fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
	}
}
