package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/shipyard/internal/events"
)

// Sender is the part of *tea.Program the bridge uses.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge connects the daemon event stream to the bubbletea program
type Bridge struct {
	program Sender
	filter  string
}

// NewBridge creates a bridge. With a non-empty filter only that project's
// events are forwarded.
func NewBridge(program Sender, filter string) *Bridge {
	return &Bridge{program: program, filter: filter}
}

// Handler returns an event handler that feeds the program
func (b *Bridge) Handler() func(events.Event) {
	return func(evt events.Event) {
		if b.filter != "" && evt.Project != b.filter {
			return
		}
		if msg := EventToMsg(evt); msg != nil {
			b.program.Send(msg)
		}
		if evt.Type != events.MonitorTick {
			b.program.Send(LogMsg{Line: logLine(evt)})
		}
	}
}

// EventToMsg converts a lifecycle event to a state change message, or nil
// for events that do not change project state.
func EventToMsg(evt events.Event) tea.Msg {
	id, at := evt.Project, evt.Time
	if id == "" {
		return nil
	}

	switch evt.Type {
	case events.ProjectCreated:
		return StoppedMsg{ProjectID: id, At: at}
	case events.ProjectDeleted:
		return RemovedMsg{ProjectID: id}

	case events.BuildStarted:
		return PhaseMsg{ProjectID: id, Status: "PENDING", Phase: "building image", PhaseIcon: IconBuild, At: at}
	case events.BuildSkipped:
		return PhaseMsg{ProjectID: id, Status: "PENDING", Phase: "image up to date", PhaseIcon: IconWaiting, At: at}
	case events.BuildCompleted:
		return PhaseMsg{ProjectID: id, Status: "PENDING", Phase: "starting container", PhaseIcon: IconWaiting, At: at}
	case events.MonitorRestart:
		return PhaseMsg{ProjectID: id, Status: "PENDING", Phase: "restarting (auto-restart)", PhaseIcon: IconRestart, At: at}

	case events.ContainerStarted, events.ContainerRestarted:
		url, _ := payloadString(evt, "url")
		return RunningMsg{ProjectID: id, URL: url, At: at}
	case events.ContainerStopped:
		return StoppedMsg{ProjectID: id, At: at}
	case events.BuildFailed, events.ContainerFailed:
		return FailedMsg{ProjectID: id, Error: evt.Error, At: at}

	default:
		return nil
	}
}

func payloadString(evt events.Event, key string) (string, bool) {
	payload, ok := evt.Payload.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := payload[key].(string)
	return s, ok
}

func logLine(evt events.Event) string {
	line := fmt.Sprintf("%s %s", evt.Time.Local().Format("15:04:05"), evt.Type)
	if evt.Project != "" {
		line += " " + evt.Project
	}
	if evt.Error != "" {
		line += ": " + evt.Error
	}
	return line
}

// SendDone sends a DoneMsg to the program
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}

// SendStreamClosed reports the end of the event stream
func (b *Bridge) SendStreamClosed(err error) {
	b.program.Send(StreamClosedMsg{Err: err})
}
