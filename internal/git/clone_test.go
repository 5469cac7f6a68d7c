package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/shipyard/internal/testutil"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://github.com/acme/todo.git",
		"ssh://git@github.com/acme/todo.git",
		"git@github.com:acme/todo.git",
	}
	for _, u := range valid {
		assert.NoError(t, ValidateURL(u), u)
	}

	invalid := []string{
		"",
		"--upload-pack=touch /tmp/pwned",
		"/etc/passwd",
		"file:///etc",
		"ext::sh -c touch% /tmp/pwned",
		"https:///nohost",
	}
	for _, u := range invalid {
		assert.ErrorIs(t, ValidateURL(u), ErrInvalidURL, u)
	}
}

// scriptedGit records git invocations and answers each with fn.
type scriptedGit struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(dir string, args []string) error
}

func (g *scriptedGit) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, args)
	g.mu.Unlock()
	if g.fn == nil {
		return "", nil
	}
	return "", g.fn(dir, args)
}

func TestClone_ShallowAndStripsGitDir(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "projects", "p1")
	runner := &scriptedGit{fn: func(dir string, args []string) error {
		assert.Equal(t, filepath.Dir(dest), dir)
		// what git leaves behind
		require.NoError(t, os.MkdirAll(filepath.Join(dest, ".git"), 0755))
		return os.WriteFile(filepath.Join(dest, "package.json"), []byte("{}"), 0644)
	}}

	err := NewCloner(runner).Clone(context.Background(), "https://example.com/app.git", "main", dest)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dest, "package.json"))
	assert.NoDirExists(t, filepath.Join(dest, ".git"))
	assert.Equal(t, [][]string{
		{"clone", "--depth", "1", "--single-branch", "--branch", "main", "--", "https://example.com/app.git", dest},
	}, runner.calls)
}

func TestClone_FailureCleansUp(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "p1")
	runner := &scriptedGit{fn: func(string, []string) error {
		require.NoError(t, os.MkdirAll(dest, 0755))
		return &CommandError{Args: []string{"clone"}, Stderr: "repository not found", Err: errors.New("exit status 128")}
	}}

	err := NewCloner(runner).Clone(context.Background(), "https://example.com/app.git", "", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository not found")
	assert.NoDirExists(t, dest)
	require.Len(t, runner.calls, 1)
	assert.NotContains(t, runner.calls[0], "--branch")
}

func TestClone_ExistingDestination(t *testing.T) {
	dest := t.TempDir()
	runner := &scriptedGit{}
	err := NewCloner(runner).Clone(context.Background(), "https://example.com/app.git", "", dest)
	assert.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Args: []string{"clone", "--depth", "1"}, Stderr: "fatal: not found\n", Err: errors.New("exit status 128")}
	assert.Equal(t, "git clone --depth 1: exit status 128: fatal: not found", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "exit status 128")
}

func TestClone_RealRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	src := testutil.InitGitRepo(t, map[string]string{"go.mod": "module app\n"})

	// Local paths are rejected by ValidateURL, so drive the runner directly
	dest := filepath.Join(t.TempDir(), "clone")
	_, err := NewRunner().Exec(context.Background(), filepath.Dir(dest), "clone", "--depth", "1", "file://"+src, dest)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "go.mod"))
}
