package tui

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height

	case TickMsg:
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case QuitMsg:
		m.Quitting = true
		return m, tea.Quit

	case StreamClosedMsg:
		m.StreamErr = msg.Err

	case PhaseMsg:
		p := m.project(msg.ProjectID)
		p.Status = msg.Status
		p.Phase = msg.Phase
		p.PhaseIcon = msg.PhaseIcon
		p.Error = ""
		p.Updated = msg.At

	case RunningMsg:
		p := m.project(msg.ProjectID)
		p.Status = "RUNNING"
		p.Phase = ""
		p.PhaseIcon = IconRunning
		if msg.URL != "" {
			p.URL = msg.URL
		}
		p.Error = ""
		p.Updated = msg.At

	case StoppedMsg:
		p := m.project(msg.ProjectID)
		p.Status = "STOPPED"
		p.Phase = ""
		p.PhaseIcon = IconStopped
		p.URL = ""
		p.Updated = msg.At

	case FailedMsg:
		p := m.project(msg.ProjectID)
		p.Status = "ERROR"
		p.Phase = ""
		p.PhaseIcon = IconFailed
		p.Error = msg.Error
		p.Updated = msg.At

	case RemovedMsg:
		delete(m.Projects, msg.ProjectID)

	case LogMsg:
		m.LogLines = append(m.LogLines, msg.Line)
		if over := len(m.LogLines) - m.LogLimit; m.LogLimit > 0 && over > 0 {
			m.LogLines = m.LogLines[over:]
		}
	}

	return m, nil
}

// project returns the state for id, creating it on first sight.
func (m *Model) project(id string) *ProjectState {
	p, ok := m.Projects[id]
	if !ok {
		p = &ProjectState{ID: id, Status: "UNKNOWN", PhaseIcon: IconStopped}
		m.Projects[id] = p
	}
	return p
}
