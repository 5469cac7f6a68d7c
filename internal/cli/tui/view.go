package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// View implements tea.Model
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderProjects())
	b.WriteString(m.renderLog())
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	scope := "all projects"
	if m.Filter != "" {
		scope = "project " + m.Filter
	}
	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("Shipyard"),
		m.Styles.Timer.Render(fmt.Sprintf("[%s]", formatDuration(elapsed))),
		m.Styles.Filter.Render("watching "+scope),
	)
}

// renderProjects lists projects seen so far, most recently updated first
func (m *Model) renderProjects() string {
	if len(m.Projects) == 0 {
		return "  Waiting for events...\n\n"
	}

	projects := make([]*ProjectState, 0, len(m.Projects))
	for _, p := range m.Projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].Updated.Equal(projects[j].Updated) {
			return projects[i].Updated.After(projects[j].Updated)
		}
		return projects[i].ID < projects[j].ID
	})

	var b strings.Builder
	for _, p := range projects {
		b.WriteString(m.renderProject(p))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderProject(p *ProjectState) string {
	var b strings.Builder

	style := m.Styles.statusStyle(p.Status)
	fmt.Fprintf(&b, "  %s %s %s",
		style.Render(p.PhaseIcon),
		m.Styles.ProjectName.Render(p.ID),
		style.Render(p.Status))
	if p.URL != "" {
		fmt.Fprintf(&b, "  %s", m.Styles.URL.Render(p.URL))
	}
	b.WriteString("\n")

	switch {
	case p.Phase != "":
		fmt.Fprintf(&b, "      %s\n", m.Styles.PhaseText.Render(p.Phase))
	case p.Error != "":
		fmt.Fprintf(&b, "      %s\n", m.Styles.ErrorText.Render(p.Error))
	}
	return b.String()
}

func (m *Model) renderLog() string {
	if len(m.LogLines) == 0 && m.StreamErr == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.Styles.LogTitle.Render("  Recent events"))
	b.WriteString("\n")
	for _, line := range m.LogLines {
		b.WriteString("  ")
		b.WriteString(m.Styles.LogLine.Render(line))
		b.WriteString("\n")
	}
	if m.StreamErr != nil {
		b.WriteString(m.Styles.ErrorText.Render("  stream closed: " + m.StreamErr.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderFooter() string {
	key := m.Styles.FooterKey.Render("q")
	return m.Styles.Footer.Render(fmt.Sprintf("  Press %s to quit", key))
}

// formatDuration formats a duration as HH:MM:SS
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
