package events

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a single occurrence in a project's deployment lifecycle
type Event struct {
	// Time is when the event occurred (set by bus on emit)
	Time time.Time `json:"time"`

	// Type identifies what happened
	Type EventType `json:"type"`

	// Project is the project ID this event relates to (empty for daemon events)
	Project string `json:"project,omitempty"`

	// Payload contains event-specific data (type varies by event)
	Payload any `json:"payload,omitempty"`

	// Error contains error message if this is a failure event
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category
type EventType string

// Image build events
const (
	BuildStarted   EventType = "build.started"
	BuildSkipped   EventType = "build.skipped" // Fingerprint unchanged and image present
	BuildCompleted EventType = "build.completed"
	BuildFailed    EventType = "build.failed"
)

// Container lifecycle events
const (
	ContainerStarted   EventType = "container.started"
	ContainerStopped   EventType = "container.stopped"
	ContainerRestarted EventType = "container.restarted"
	ContainerFailed    EventType = "container.failed"

	// AutoRestartChanged carries payload: enabled (bool)
	AutoRestartChanged EventType = "container.autorestart"
)

// Network events
const (
	NetworkCreated EventType = "network.created"
)

// Supervisor events
const (
	MonitorTick    EventType = "monitor.tick"
	MonitorRestart EventType = "monitor.restart"
)

// Project management events
const (
	ProjectCreated EventType = "project.created"
	ProjectDeleted EventType = "project.deleted"
)

// NewEvent creates an event with the given type and project
func NewEvent(eventType EventType, project string) Event {
	return Event{
		Type:    eventType,
		Project: project,
	}
}

// WithPayload returns a copy of the event with the payload set
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy of the event with the error message set
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure returns true if this is a failure event type
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed")
}

// String returns a human-readable representation of the event
func (e Event) String() string {
	parts := []string{fmt.Sprintf("[%s]", e.Type)}
	if e.Project != "" {
		parts = append(parts, e.Project)
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	return strings.Join(parts, " ")
}
