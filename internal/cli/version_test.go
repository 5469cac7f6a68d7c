package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runVersion(t *testing.T, app *App) []string {
	t.Helper()
	cmd := NewVersionCmd(app)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	require.NoError(t, cmd.Execute())
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestVersionCmd_Output(t *testing.T) {
	app := New()
	app.SetVersion("1.2.3", "abc1234", "2024-01-15T10:30:00Z")

	assert.Equal(t, []string{
		"shipyard version 1.2.3",
		"commit: abc1234",
		"built: 2024-01-15T10:30:00Z",
	}, runVersion(t, app))
}

func TestVersionCmd_DefaultValues(t *testing.T) {
	assert.Equal(t, []string{
		"shipyard version dev",
		"commit: unknown",
		"built: unknown",
	}, runVersion(t, New()))
}
