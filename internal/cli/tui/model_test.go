package tui

import (
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/shipyard/internal/events"
)

type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func event(t events.EventType, project string) events.Event {
	e := events.NewEvent(t, project)
	e.Time = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return e
}

func TestEventToMsg(t *testing.T) {
	started := event(events.ContainerStarted, "01A").WithPayload(map[string]any{"url": "http://localhost:32768"})
	failed := event(events.BuildFailed, "01A").WithError(errors.New("exit 1"))

	assert.Equal(t, RunningMsg{ProjectID: "01A", URL: "http://localhost:32768", At: started.Time}, EventToMsg(started))
	assert.Equal(t, FailedMsg{ProjectID: "01A", Error: "exit 1", At: failed.Time}, EventToMsg(failed))
	assert.Equal(t, RemovedMsg{ProjectID: "01A"}, EventToMsg(event(events.ProjectDeleted, "01A")))

	phase, ok := EventToMsg(event(events.BuildStarted, "01A")).(PhaseMsg)
	require.True(t, ok)
	assert.Equal(t, "PENDING", phase.Status)
	assert.Equal(t, IconBuild, phase.PhaseIcon)

	assert.Nil(t, EventToMsg(event(events.NetworkCreated, "")))
	assert.Nil(t, EventToMsg(event(events.AutoRestartChanged, "01A")))
}

func TestBridge_FiltersAndLogs(t *testing.T) {
	rec := &recorder{}
	handler := NewBridge(rec, "01A").Handler()

	handler(event(events.BuildStarted, "01A"))
	handler(event(events.BuildStarted, "01B"))
	handler(event(events.MonitorTick, ""))

	require.Len(t, rec.msgs, 2)
	assert.IsType(t, PhaseMsg{}, rec.msgs[0])
	logMsg, ok := rec.msgs[1].(LogMsg)
	require.True(t, ok)
	assert.Contains(t, logMsg.Line, "build.started 01A")
}

func TestModel_TracksProjectState(t *testing.T) {
	m := NewModel("")
	t0 := time.Now()

	m.Update(PhaseMsg{ProjectID: "01A", Status: "PENDING", Phase: "building image", PhaseIcon: IconBuild, At: t0})
	assert.Equal(t, "PENDING", m.Projects["01A"].Status)
	assert.Contains(t, m.View(), "building image")

	m.Update(RunningMsg{ProjectID: "01A", URL: "http://localhost:32768", At: t0.Add(time.Second)})
	p := m.Projects["01A"]
	assert.Equal(t, "RUNNING", p.Status)
	assert.Empty(t, p.Phase)
	assert.Contains(t, m.View(), "http://localhost:32768")

	// A restart event without a URL keeps the known one
	m.Update(RunningMsg{ProjectID: "01A", At: t0.Add(2 * time.Second)})
	assert.Equal(t, "http://localhost:32768", m.Projects["01A"].URL)

	m.Update(FailedMsg{ProjectID: "01A", Error: "port discovery failed"})
	assert.Equal(t, "ERROR", m.Projects["01A"].Status)
	assert.Contains(t, m.View(), "port discovery failed")

	m.Update(StoppedMsg{ProjectID: "01A"})
	assert.Empty(t, m.Projects["01A"].URL)

	m.Update(RemovedMsg{ProjectID: "01A"})
	assert.Empty(t, m.Projects)
	assert.Contains(t, m.View(), "Waiting for events")
}

func TestModel_LogLimit(t *testing.T) {
	m := NewModel("01A")
	m.LogLimit = 2
	for _, line := range []string{"a", "b", "c"} {
		m.Update(LogMsg{Line: line})
	}
	assert.Equal(t, []string{"b", "c"}, m.LogLines)
	assert.Contains(t, m.View(), "watching project 01A")
}

func TestModel_Quit(t *testing.T) {
	m := NewModel("")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.Quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())

	m = NewModel("")
	m.Update(StreamClosedMsg{Err: errors.New("connection reset")})
	assert.Contains(t, m.View(), "stream closed: connection reset")
}
