package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/RevCBH/shipyard/internal/events"
)

// Hub fans lifecycle events out to SSE subscribers.
// It runs an event loop in a separate goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan events.Event

	// done signals the Run loop to exit
	done     chan struct{}
	stopOnce sync.Once
}

// subscriber is one connected stream, optionally limited to one project.
type subscriber struct {
	project string
	events  chan events.Event
}

// NewHub creates a hub. Call Run to start the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*subscriber]struct{}),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan events.Event, 64),
		done:       make(chan struct{}),
	}
}

// Run processes register, unregister and broadcast until Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.events)
			}
			h.clients = make(map[*subscriber]struct{})
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.events)
			}
			h.mu.Unlock()
		case e := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.project != "" && c.project != e.Project {
					continue
				}
				select {
				case c.events <- e:
				default:
					// Buffer full, drop event for this client
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop closes every stream and ends Run. It is safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Handler returns a bus handler that broadcasts every event.
func (h *Hub) Handler() events.Handler {
	return func(e events.Event) {
		select {
		case h.broadcast <- e:
		case <-h.done:
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) subscribe(project string) (*subscriber, bool) {
	c := &subscriber{project: project, events: make(chan events.Event, 256)}
	select {
	case h.register <- c:
		return c, true
	case <-h.done:
		return nil, false
	}
}

func (h *Hub) unsubscribe(c *subscriber) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// serveEvents streams events as SSE. project limits the stream to one
// project when non-empty.
func (h *Hub) serveEvents(w http.ResponseWriter, r *http.Request, project string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	c, ok := h.subscribe(project)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "event stream closed")
		return
	}
	defer h.unsubscribe(c)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial comment to establish connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-c.events:
			if !ok {
				return
			}
			data, err := json.Marshal(events.ToJSONEvent(e))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}
