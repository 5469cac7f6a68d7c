package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/RevCBH/shipyard/internal/client"
	"github.com/RevCBH/shipyard/internal/events"
)

// StatusSymbol is shown next to a project status
type StatusSymbol string

const (
	SymbolRunning StatusSymbol = "●"
	SymbolPending StatusSymbol = "◌"
	SymbolStopped StatusSymbol = "○"
	SymbolError   StatusSymbol = "✗"
)

var (
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// GetStatusSymbol returns the symbol for a lifecycle status
func GetStatusSymbol(status string) StatusSymbol {
	switch status {
	case "RUNNING":
		return SymbolRunning
	case "PENDING":
		return SymbolPending
	case "ERROR":
		return SymbolError
	default:
		return SymbolStopped
	}
}

// FormatStatus renders status with its symbol, colored when color is set.
func FormatStatus(status string, color bool) string {
	text := fmt.Sprintf("%s %s", GetStatusSymbol(status), status)
	if !color {
		return text
	}
	switch status {
	case "RUNNING":
		return runningStyle.Render(text)
	case "PENDING":
		return pendingStyle.Render(text)
	case "ERROR":
		return errorStyle.Render(text)
	default:
		return dimStyle.Render(text)
	}
}

// displayProjects renders projects in tabular form. statuses may be nil.
func displayProjects(w io.Writer, projects []*client.Project, statuses map[string]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tNAME\tSTACK\tSTATUS\tAUTO-RESTART\tCREATED")
	for _, p := range projects {
		status := statuses[p.ID]
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Stack, status, onOff(p.AutoRestartEnabled), formatTime(p.CreatedAt))
	}
}

// displayDetails renders one project with its live state.
func displayDetails(w io.Writer, d *client.ProjectDetails, color bool) {
	p := d.Project
	fmt.Fprintf(w, "Project:      %s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(w, "Stack:        %s\n", p.Stack)
	if p.Source != "" {
		fmt.Fprintf(w, "Source:       %s\n", p.Source)
	}
	fmt.Fprintf(w, "Status:       %s\n", FormatStatus(d.Status, color))
	if d.URL != "" {
		fmt.Fprintf(w, "URL:          %s\n", d.URL)
	}
	fmt.Fprintf(w, "Auto-restart: %s\n", onOff(p.AutoRestartEnabled))
	if d.Usage != nil {
		fmt.Fprintf(w, "CPU:          %.2f%%\n", d.Usage.CPUPercent)
		fmt.Fprintf(w, "Memory:       %.2f%%\n", d.Usage.MemoryPercent)
	}
	fmt.Fprintf(w, "Created:      %s\n", formatTime(p.CreatedAt))
}

// displayOperation renders the outcome of START, STOP or RESTART.
func displayOperation(w io.Writer, op string, res *client.OperationResult, color bool) {
	fmt.Fprintf(w, "%s: %s\n", strings.ToUpper(op), FormatStatus(res.Status, color))
	if res.ServerURL != "" {
		fmt.Fprintf(w, "URL: %s\n", res.ServerURL)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "Error (%s): %s\n", res.Kind, res.Error)
	}
}

// FormatEvent renders an event as a single line.
func FormatEvent(e events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Time.Local().Format("15:04:05"), e.Type)
	if e.Project != "" {
		fmt.Fprintf(&b, " %s", e.Project)
	}
	if payload, ok := e.Payload.(map[string]any); ok && len(payload) > 0 {
		for _, key := range []string{"operation", "kind", "url", "host_port", "name", "stack", "enabled"} {
			if v, ok := payload[key]; ok {
				fmt.Fprintf(&b, " %s=%v", key, v)
			}
		}
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " - %s", e.Error)
	}
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
