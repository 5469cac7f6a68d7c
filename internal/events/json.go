package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// JSONEvent is the wire form of an Event used by the API, the SSE stream
// and `watch --json`. Payloads always travel as objects.
type JSONEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Project   string         `json:"project,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ToJSONEvent converts e to its wire form. Struct payloads are flattened
// through their JSON encoding; scalars land under "value".
func ToJSONEvent(e Event) JSONEvent {
	return JSONEvent{
		Type:      string(e.Type),
		Timestamp: e.Time,
		Project:   e.Project,
		Payload:   payloadObject(e.Payload),
		Error:     e.Error,
	}
}

func payloadObject(payload any) map[string]any {
	switch p := payload.(type) {
	case nil:
		return nil
	case map[string]any:
		return p
	}
	raw, err := json.Marshal(payload)
	if err == nil {
		var obj map[string]any
		if json.Unmarshal(raw, &obj) == nil {
			return obj
		}
	}
	return map[string]any{"value": payload}
}

// ToEvent converts je back to an Event.
func (je JSONEvent) ToEvent() Event {
	e := Event{
		Type:    EventType(je.Type),
		Time:    je.Timestamp,
		Project: je.Project,
		Error:   je.Error,
	}
	if je.Payload != nil {
		e.Payload = je.Payload
	}
	return e
}

// ParseJSONEvent decodes one encoded JSONEvent.
func ParseJSONEvent(data []byte) (Event, error) {
	var je JSONEvent
	if err := json.Unmarshal(data, &je); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return je.ToEvent(), nil
}

// JSONEmitter writes events to w as JSON lines. Safe for concurrent use.
type JSONEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{w: w}
}

// Emit writes e as one line.
func (j *JSONEmitter) Emit(e Event) error {
	line, err := json.Marshal(ToJSONEvent(e))
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(append(line, '\n'))
	return err
}
