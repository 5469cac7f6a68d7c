package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains all lipgloss styles for the TUI
type Styles struct {
	// Header styling
	Title  lipgloss.Style
	Timer  lipgloss.Style
	Filter lipgloss.Style

	// Project rows
	ProjectName lipgloss.Style
	Running     lipgloss.Style
	Pending     lipgloss.Style
	Stopped     lipgloss.Style
	Failed      lipgloss.Style
	URL         lipgloss.Style
	ErrorText   lipgloss.Style

	// Phase icons and text
	PhaseIcon lipgloss.Style
	PhaseText lipgloss.Style

	// Footer styling
	Footer    lipgloss.Style
	FooterKey lipgloss.Style

	// Log area styling
	LogTitle lipgloss.Style
	LogLine  lipgloss.Style
}

// DefaultStyles returns the default TUI styles
func DefaultStyles() Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Timer:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Filter: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		ProjectName: lipgloss.NewStyle().Bold(true),
		Running:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Pending:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Stopped:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Failed:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		URL:         lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true),
		ErrorText:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Italic(true),

		PhaseIcon: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		PhaseText: lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true),

		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1),
		FooterKey: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),

		LogTitle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true),
		LogLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Icons used in the TUI
const (
	IconRunning = "●"
	IconStopped = "○"
	IconFailed  = "✗"
	IconBuild   = "🔨"
	IconNetwork = "🔌"
	IconRestart = "🔁"
	IconWaiting = "⏳"
)

// statusStyle picks the row style for a status.
func (s Styles) statusStyle(status string) lipgloss.Style {
	switch status {
	case "RUNNING":
		return s.Running
	case "PENDING":
		return s.Pending
	case "ERROR":
		return s.Failed
	default:
		return s.Stopped
	}
}
