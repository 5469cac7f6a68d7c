package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// pool runs tasks with bounded parallelism on its own context, so callers
// that stop waiting never cancel in-flight engine work.
type pool struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	sem    chan struct{} // semaphore for concurrency control
	closed bool
	queued atomic.Int64

	cancelCtx  context.Context
	cancelFunc context.CancelFunc
}

// PoolStats holds current pool statistics
type PoolStats struct {
	Workers int
	Active  int
	Queued  int
}

func newPool(workers int) *pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		sem:        make(chan struct{}, workers),
		cancelCtx:  ctx,
		cancelFunc: cancel,
	}
}

// submit queues task without blocking the caller. The task's goroutine
// first waits for ready, then for a free slot, so work blocked behind
// another operation on the same project never occupies a worker.
func (p *pool) submit(ready <-chan struct{}, task func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.queued.Add(1)
	poolQueued.Inc()
	go func() {
		defer p.wg.Done()

		<-ready
		select {
		case p.sem <- struct{}{}:
		case <-p.cancelCtx.Done():
			p.dequeue()
			task(p.cancelCtx)
			return
		}
		p.dequeue()
		poolActive.Inc()
		defer func() {
			poolActive.Dec()
			<-p.sem
		}()

		task(p.cancelCtx)
	}()
	return nil
}

func (p *pool) dequeue() {
	p.queued.Add(-1)
	poolQueued.Dec()
}

func (p *pool) stats() PoolStats {
	return PoolStats{
		Workers: cap(p.sem),
		Active:  len(p.sem),
		Queued:  int(p.queued.Load()),
	}
}

// shutdown stops accepting work, cancels the pool context and waits for
// running tasks until ctx expires.
func (p *pool) shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancelFunc()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}
