package api

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/fingerprint"
	"github.com/RevCBH/shipyard/internal/lifecycle"
	"github.com/RevCBH/shipyard/internal/network"
	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/source"
	"github.com/RevCBH/shipyard/internal/stack"
	"github.com/RevCBH/shipyard/internal/testutil"
)

// treeCloner "clones" by writing a fixed file set.
type treeCloner map[string]string

func (c treeCloner) Clone(ctx context.Context, repoURL, ref, dest string) error {
	for name, content := range c {
		path := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

var nodeTree = treeCloner{
	"package.json": `{"name":"todo","scripts":{"start":"node index.js"}}`,
	"index.js":     "require('http').createServer().listen(3000)\n",
}

type fixture struct {
	srv     *Server
	engine  *testutil.FakeEngine
	repo    *project.MemoryRepository
	storage project.DirResolver
	hub     *Hub
	manager *lifecycle.Manager
}

func newFixture(t *testing.T, auth *Authenticator, cloner source.Cloner) *fixture {
	t.Helper()
	engine := testutil.NewFakeEngine()
	repo := project.NewMemoryRepository()
	storage := project.DirResolver{Root: t.TempDir()}

	m, err := lifecycle.New(lifecycle.Options{
		Engine:                engine,
		Repo:                  repo,
		Storage:               storage,
		Cache:                 fingerprint.NewCache(t.TempDir(), nil),
		Network:               network.NewProvisioner(engine, "app-network", "", nil, nil),
		Routing:               lifecycle.Routing{Mode: lifecycle.RoutingHostPort, Scheme: "http", Host: "localhost"},
		OperationTimeout:      5 * time.Second,
		OnFailureRetries:      3,
		PortDiscoveryAttempts: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close(context.Background()) })

	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := NewServer(Deps{
		Lifecycle: m,
		Repo:      repo,
		Storage:   storage,
		Creator:   source.NewInitializer(repo, storage, cloner, nil, nil),
		Hub:       hub,
		Auth:      auth,
	}, nil)
	return &fixture{srv: srv, engine: engine, repo: repo, storage: storage, hub: hub, manager: m}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func (f *fixture) create(t *testing.T, token string) *project.Project {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{
		Name:    "todo",
		RepoURL: "https://github.com/example/todo.git",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p project.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return &p
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateProject_FromRepository(t *testing.T) {
	f := newFixture(t, nil, nodeTree)

	p := f.create(t, "")
	assert.Equal(t, stack.NodeJS, p.Stack)
	assert.FileExists(t, filepath.Join(f.storage.ProjectPath(p), stack.RecipeFile))

	w := f.do(t, http.MethodGet, "/api/v1/projects", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]project.Project](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestCreateProject_FromArchive(t *testing.T) {
	f := newFixture(t, nil, nil)

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	fw, err := zw.Create("app/requirements.txt")
	require.NoError(t, err)
	fw.Write([]byte("flask\n"))
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "api"))
	part, err := mw.CreateFormFile("archive", "api.zip")
	require.NoError(t, err)
	part.Write(archive.Bytes())
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[project.Project](t, w)
	assert.Equal(t, stack.Python, p.Stack)
	assert.Equal(t, "upload", p.Source)
}

func TestCreateProject_Errors(t *testing.T) {
	t.Run("invalid url", func(t *testing.T) {
		f := newFixture(t, nil, nodeTree)
		w := f.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{Name: "x", RepoURL: "file:///etc"}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		f := newFixture(t, nil, nodeTree)
		w := f.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{RepoURL: "https://example.com/x.git"}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unsupported stack", func(t *testing.T) {
		f := newFixture(t, nil, treeCloner{"README.md": "docs"})
		w := f.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{Name: "docs", RepoURL: "https://example.com/docs.git"}, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("bad json", func(t *testing.T) {
		f := newFixture(t, nil, nodeTree)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader("{"))
		w := httptest.NewRecorder()
		f.srv.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOperations_Sync(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")
	base := "/api/v1/projects/" + p.ID

	w := f.do(t, http.MethodPost, base+"/start", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	started := decode[OperationResponse](t, w)
	assert.Equal(t, lifecycle.StatusRunning, started.Status)
	assert.True(t, strings.HasPrefix(started.ServerURL, "http://localhost:"), started.ServerURL)

	status := decode[lifecycle.Info](t, f.do(t, http.MethodGet, base+"/status", nil, ""))
	assert.Equal(t, lifecycle.StatusRunning, status.Status)
	assert.Equal(t, started.ServerURL, status.ServerURL)

	details := decode[ProjectDetails](t, f.do(t, http.MethodGet, base, nil, ""))
	assert.Equal(t, lifecycle.StatusRunning, details.Status)
	assert.NotNil(t, details.Usage)
	assert.Equal(t, started.ServerURL, details.URL)

	for i := 0; i < 2; i++ {
		stopped := decode[OperationResponse](t, f.do(t, http.MethodPost, base+"/stop", nil, ""))
		assert.Equal(t, lifecycle.StatusStopped, stopped.Status)
		assert.Empty(t, stopped.Error)
	}

	details = decode[ProjectDetails](t, f.do(t, http.MethodGet, base, nil, ""))
	assert.Equal(t, lifecycle.StatusStopped, details.Status)
	assert.Nil(t, details.Usage)

	restarted := decode[OperationResponse](t, f.do(t, http.MethodPost, base+"/restart", nil, ""))
	assert.Equal(t, lifecycle.StatusError, restarted.Status)
	assert.Equal(t, string(lifecycle.KindNotFound), restarted.Kind)
}

func TestOperations_Async(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")
	f.engine.BuildGate = make(chan struct{})

	w := f.do(t, http.MethodPost, "/api/v1/projects/"+p.ID+"/START?async=true", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, lifecycle.StatusPending, decode[OperationResponse](t, w).Status)

	close(f.engine.BuildGate)
	assert.Eventually(t, func() bool {
		info := decode[lifecycle.Info](t, f.do(t, http.MethodGet, "/api/v1/projects/"+p.ID+"/status", nil, ""))
		return info.Status == lifecycle.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOperations_Unknown(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")

	w := f.do(t, http.MethodPost, "/api/v1/projects/"+p.ID+"/deploy", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutoRestart(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")
	base := "/api/v1/projects/" + p.ID
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/start", nil, "").Code)

	w := f.do(t, http.MethodPut, base+"/autorestart", AutoRestartRequest{Enabled: true}, "")
	require.Equal(t, http.StatusOK, w.Code)

	saved, err := f.repo.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, saved.AutoRestartEnabled)

	c, ok := f.engine.Container(f.manager.ContainerName(p.ID))
	require.True(t, ok)
	assert.True(t, c.Running)
	assert.Equal(t, "unless-stopped", string(c.RestartPolicy))
}

func TestLogs(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")
	base := "/api/v1/projects/" + p.ID

	w := f.do(t, http.MethodGet, base+"/logs", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/start", nil, "").Code)
	w = f.do(t, http.MethodGet, base+"/logs?tail=20", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "listening on")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, base+"/logs?tail=-1", nil, "").Code)
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")
	base := "/api/v1/projects/" + p.ID
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/start", nil, "").Code)

	w := f.do(t, http.MethodDelete, base, nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Zero(t, f.engine.ContainersLabeled(lifecycle.ProjectLabel, p.ID))
	assert.NoDirExists(t, f.storage.ProjectPath(p))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, base, nil, "").Code)
}

func TestProjectLookup(t *testing.T) {
	f := newFixture(t, nil, nodeTree)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/projects/01UNKNOWN", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/projects/bad.id", nil, "").Code)
}

func TestAuth(t *testing.T) {
	auth := NewAuthenticator("test-secret")
	f := newFixture(t, auth, nodeTree)

	alice, err := auth.Issue("alice", time.Hour)
	require.NoError(t, err)
	bob, err := auth.Issue("bob", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/projects", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/projects", nil, "garbage").Code)

	p := f.create(t, alice)
	assert.Equal(t, "alice", p.OwnerID)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/projects/"+p.ID, nil, alice).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/v1/projects/"+p.ID, nil, bob).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/v1/projects/"+p.ID+"/start", nil, bob).Code)

	assert.Len(t, decode[[]project.Project](t, f.do(t, http.MethodGet, "/api/v1/projects", nil, alice)), 1)
	assert.Empty(t, decode[[]project.Project](t, f.do(t, http.MethodGet, "/api/v1/projects", nil, bob)))

	// Health and metrics stay public
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, "").Code)
}

func TestAuthenticator_RejectsForeignTokens(t *testing.T) {
	auth := NewAuthenticator("secret-a")
	other := NewAuthenticator("secret-b")

	token, err := other.Issue("alice", time.Hour)
	require.NoError(t, err)
	_, err = auth.Validate(token)
	assert.Error(t, err)

	expired, err := auth.Issue("alice", -time.Minute)
	require.NoError(t, err)
	_, err = auth.Validate(expired)
	assert.Error(t, err)

	assert.Nil(t, NewAuthenticator(""))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/projects/"+p.ID+"/start", nil, "").Code)

	w := f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shipyard_operations_total")
}

type staticHistory []events.Event

func (h staticHistory) ListEvents(ctx context.Context, projectID string, limit int) ([]events.Event, error) {
	return h, nil
}

func TestProjectEvents(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	p := f.create(t, "")
	f.srv.deps.History = staticHistory{events.NewEvent(events.ContainerStarted, p.ID)}

	w := f.do(t, http.MethodGet, "/api/v1/projects/"+p.ID+"/events?limit=10", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[[]events.JSONEvent](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, string(events.ContainerStarted), got[0].Type)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil, nodeTree)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	f.hub.Handler()(events.NewEvent(events.BuildStarted, "01ABC"))

	var got []string
	for len(got) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			got = append(got, line)
		}
	}
	assert.Equal(t, "event: build.started", got[0])
	assert.Contains(t, got[1], `"project":"01ABC"`)
}
