package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ProjectState tracks the last known state of one project
type ProjectState struct {
	ID        string
	Status    string
	Phase     string
	PhaseIcon string
	URL       string
	Error     string
	Updated   time.Time
}

// Model is the bubbletea model for the watch TUI
type Model struct {
	// Filter limits the view to one project (empty watches all)
	Filter string
	Styles Styles

	Projects  map[string]*ProjectState
	StartTime time.Time
	LogLines  []string
	LogLimit  int
	Width     int
	Height    int

	// StreamErr is set when the event stream ends unexpectedly
	StreamErr error

	Quitting bool
	Done     bool
}

// NewModel creates a new TUI model
func NewModel(filter string) *Model {
	return &Model{
		Filter:    filter,
		Styles:    DefaultStyles(),
		Projects:  make(map[string]*ProjectState),
		StartTime: time.Now(),
		LogLimit:  8,
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg is sent every second to update the timer
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the TUI should exit
type DoneMsg struct{}

// QuitMsg signals the user requested quit (q or Ctrl+C)
type QuitMsg struct{}

// StreamClosedMsg reports that the daemon event stream ended
type StreamClosedMsg struct {
	Err error
}

// PhaseMsg moves a project into an in-progress phase
type PhaseMsg struct {
	ProjectID string
	Status    string
	Phase     string
	PhaseIcon string
	At        time.Time
}

// RunningMsg indicates a project's container is serving
type RunningMsg struct {
	ProjectID string
	URL       string
	At        time.Time
}

// StoppedMsg indicates a project's container is gone or exited
type StoppedMsg struct {
	ProjectID string
	At        time.Time
}

// FailedMsg indicates an operation on a project failed
type FailedMsg struct {
	ProjectID string
	Error     string
	At        time.Time
}

// RemovedMsg indicates a project was deleted
type RemovedMsg struct {
	ProjectID string
}

// LogMsg appends a line to the activity log
type LogMsg struct {
	Line string
}
