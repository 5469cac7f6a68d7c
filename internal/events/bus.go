package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handler receives dispatched events. Handlers run on the bus goroutine and
// must not block for long.
type Handler func(Event)

// Bus provides event distribution across components.
// Emit never blocks: when the buffer is full the event is dropped.
type Bus struct {
	Capacity int

	mu       sync.RWMutex
	handlers []Handler
	closed   bool

	events  chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewBus creates a new event bus with the specified capacity and starts
// its dispatch goroutine.
func NewBus(capacity int) *Bus {
	b := &Bus{
		Capacity: capacity,
		events:   make(chan Event, capacity),
		done:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Emit stamps the event time and queues it for dispatch.
// A nil bus discards events, so components can run without one.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.events <- e:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for e := range b.events {
		b.mu.RLock()
		handlers := b.handlers
		b.mu.RUnlock()

		for _, h := range handlers {
			h(e)
		}
	}
}

// Close shuts down the event bus after delivering queued events.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.events)
	b.mu.Unlock()

	<-b.done
	return nil
}
