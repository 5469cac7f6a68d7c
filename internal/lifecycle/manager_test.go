package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/shipyard/internal/container"
	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/fingerprint"
	"github.com/RevCBH/shipyard/internal/network"
	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/stack"
	"github.com/RevCBH/shipyard/internal/testutil"
)

const testProjectID = "01J9ZK3V6Q8N2W4X5Y7Z9A1B2C"

type testEnv struct {
	m       *Manager
	engine  *testutil.FakeEngine
	repo    *project.MemoryRepository
	cache   *fingerprint.Cache
	storage project.DirResolver
}

func newTestEnv(t *testing.T, configure ...func(*Options)) *testEnv {
	t.Helper()
	engine := testutil.NewFakeEngine()
	repo := project.NewMemoryRepository()
	storage := project.DirResolver{Root: t.TempDir()}
	cache := fingerprint.NewCache(t.TempDir(), nil)

	opts := Options{
		Engine:                engine,
		Repo:                  repo,
		Storage:               storage,
		Cache:                 cache,
		Network:               network.NewProvisioner(engine, "app-network", "", nil, nil),
		Routing:               Routing{Mode: RoutingHostPort, Scheme: "http", Host: "localhost"},
		Workers:               4,
		OperationTimeout:      5 * time.Second,
		OnFailureRetries:      3,
		ContainerPrefix:       "project-",
		PortDiscoveryAttempts: 2,
		PortDiscoveryInterval: time.Millisecond,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Close(ctx)
	})
	return &testEnv{m: m, engine: engine, repo: repo, cache: cache, storage: storage}
}

// addProject saves a project and writes files into its source root.
func (e *testEnv) addProject(t *testing.T, p *project.Project, files map[string]string) string {
	t.Helper()
	require.NoError(t, e.repo.Save(context.Background(), p))
	dir := e.storage.ProjectPath(p)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func nodeProject() (*project.Project, map[string]string) {
	return &project.Project{ID: testProjectID, Name: "todo", Stack: stack.NodeJS}, map[string]string{
		"Dockerfile":   "FROM node:18-alpine\nCOPY . .\nRUN npm install\nEXPOSE 3000\nCMD [\"npm\", \"start\"]\n",
		"package.json": `{"name":"todo","version":"1.0.0"}`,
		"index.js":     "require('http').createServer().listen(3000)\n",
	}
}

func (e *testEnv) run(t *testing.T, op Operation) Result {
	t.Helper()
	return e.m.Run(context.Background(), testProjectID, op)
}

func TestStart_RunningWithURL(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	r := env.run(t, OpStart)
	require.NoError(t, r.Err)
	assert.Equal(t, StatusRunning, r.Info.Status)

	name := env.m.ContainerName(testProjectID)
	c, ok := env.engine.Container(name)
	require.True(t, ok)
	assert.Equal(t, "project-01j9zk3v6q8n2w4x5y7z9a1b2c", name)
	assert.Equal(t, 3000, c.ContainerPort)
	assert.Equal(t, "app-network", c.Network)
	assert.Equal(t, testProjectID, c.Labels[ProjectLabel])

	wantURL := "http://localhost:" + strconv.Itoa(c.HostPort)
	assert.Equal(t, wantURL, r.Info.ServerURL)

	assert.Equal(t, StatusRunning, env.m.Status(context.Background(), testProjectID))
	url, ok := env.m.URL(context.Background(), testProjectID)
	require.True(t, ok)
	assert.Equal(t, wantURL, url)
}

func TestStart_RestartPolicyFollowsAutoRestart(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	require.NoError(t, env.run(t, OpStart).Err)
	c, _ := env.engine.Container(env.m.ContainerName(testProjectID))
	assert.Equal(t, container.RestartPolicy("on-failure:3"), c.RestartPolicy)

	p.AutoRestartEnabled = true
	require.NoError(t, env.repo.Save(context.Background(), p))
	require.NoError(t, env.run(t, OpStart).Err)
	c, _ = env.engine.Container(env.m.ContainerName(testProjectID))
	assert.Equal(t, container.RestartUnlessStopped, c.RestartPolicy)
}

func TestStop_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	for i := 0; i < 2; i++ {
		r := env.run(t, OpStop)
		require.NoError(t, r.Err)
		assert.Equal(t, Info{Status: StatusStopped}, r.Info)
	}

	require.NoError(t, env.run(t, OpStart).Err)
	r := env.run(t, OpStop)
	require.NoError(t, r.Err)
	assert.Equal(t, StatusStopped, r.Info.Status)
	assert.Equal(t, StatusStopped, env.m.Status(context.Background(), testProjectID))

	_, ok := env.m.URL(context.Background(), testProjectID)
	assert.False(t, ok)
}

func TestStop_EngineFailure(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	env.engine.SetError("rm", &container.ExitError{Code: 1, Stderr: "Cannot connect to the Docker daemon"})

	r := env.run(t, OpStop)
	assert.Equal(t, StatusError, r.Info.Status)
	assert.Equal(t, KindEngine, r.Kind())
}

func TestStart_SkipsBuildWhenUnchanged(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	dir := env.addProject(t, p, files)

	skipped := promtest.ToFloat64(buildsTotal.WithLabelValues("skipped"))

	require.NoError(t, env.run(t, OpStart).Err)
	require.NoError(t, env.run(t, OpStart).Err)
	assert.Equal(t, 1, env.engine.Count("build"), "second start reuses the image")
	assert.Equal(t, skipped+1, promtest.ToFloat64(buildsTotal.WithLabelValues("skipped")))

	// A manifest change forces a rebuild
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"todo","version":"1.0.1","private":true}`), 0644))
	require.NoError(t, env.run(t, OpStart).Err)
	assert.Equal(t, 2, env.engine.Count("build"))
}

func TestStart_RebuildsWhenImageMissing(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	require.NoError(t, env.run(t, OpStart).Err)
	env.engine.DeleteImage(env.m.ContainerName(testProjectID))

	require.NoError(t, env.run(t, OpStart).Err)
	assert.Equal(t, 2, env.engine.Count("build"))
}

func TestStart_OneContainerPerProject(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	for i := 0; i < 3; i++ {
		require.NoError(t, env.run(t, OpStart).Err)
		assert.Equal(t, 1, env.engine.ContainersLabeled(ProjectLabel, testProjectID))
	}
	assert.Equal(t, 3, env.engine.Count("rm"), "every start force-removes first")
	assert.Equal(t, 3, env.engine.Count("run"))
}

func TestStart_MissingRecipeWithUnknownStack(t *testing.T) {
	env := newTestEnv(t)
	env.addProject(t, &project.Project{ID: testProjectID, Name: "docs", Stack: stack.Unknown}, map[string]string{
		"README.md": "# docs",
	})

	r := env.run(t, OpStart)
	assert.Equal(t, StatusError, r.Info.Status)
	assert.Equal(t, KindConfiguration, r.Kind())
	assert.ErrorIs(t, r.Err, ErrRecipeMissing)
	assert.ErrorIs(t, r.Err, ErrUnknownStack)

	for _, op := range []string{"build", "run", "rm", "image_exists", "network_create"} {
		assert.Zero(t, env.engine.Count(op), op)
	}
	assert.False(t, env.engine.HasImage(env.m.ContainerName(testProjectID)))
	assert.Zero(t, env.engine.ContainersLabeled(ProjectLabel, testProjectID))
}

func TestStart_MissingRecipe(t *testing.T) {
	env := newTestEnv(t)
	env.addProject(t, &project.Project{ID: testProjectID, Stack: stack.Python}, map[string]string{"app.py": ""})

	r := env.run(t, OpStart)
	assert.ErrorIs(t, r.Err, ErrRecipeMissing)
	assert.NotErrorIs(t, r.Err, ErrUnknownStack)
}

func TestStart_BuildFailure(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	env.engine.SetError("build", &container.ExitError{Code: 1, Stderr: "npm ERR! missing script: build"})

	r := env.run(t, OpStart)
	assert.Equal(t, StatusError, r.Info.Status)
	assert.Equal(t, KindEngine, r.Kind())
	assert.Zero(t, env.engine.Count("run"))

	_, stored, err := env.cache.Stored(testProjectID)
	require.NoError(t, err)
	assert.False(t, stored, "failed builds leave no fingerprint")
}

func TestStart_UnknownProject(t *testing.T) {
	env := newTestEnv(t)

	r := env.run(t, OpStart)
	assert.Equal(t, StatusError, r.Info.Status)
	assert.Equal(t, KindNotFound, r.Kind())
	assert.ErrorIs(t, r.Err, ErrProjectNotFound)
}

func TestStart_PortDiscoveryFallsBack(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	env.engine.HidePorts = true

	before := promtest.ToFloat64(portFallbacks)
	r := env.run(t, OpStart)
	require.NoError(t, r.Err)
	assert.Equal(t, StatusRunning, r.Info.Status)
	assert.Equal(t, "http://localhost:3000", r.Info.ServerURL)
	assert.Equal(t, 2, env.engine.Count("port"))
	assert.Equal(t, before+1, promtest.ToFloat64(portFallbacks))
}

func TestStart_SubdomainRouting(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Routing = Routing{Mode: RoutingSubdomain, Scheme: "https", Domain: "apps.example.com"}
	})
	p, files := nodeProject()
	env.addProject(t, p, files)

	r := env.run(t, OpStart)
	require.NoError(t, r.Err)
	assert.Equal(t, "https://01j9zk3v6q8n2w4x5y7z9a1b2c.apps.example.com", r.Info.ServerURL)
}

type recordingPublisher struct {
	published, unpublished []string
}

func (p *recordingPublisher) Publish(ctx context.Context, id string) error {
	p.published = append(p.published, id)
	return nil
}

func (p *recordingPublisher) Unpublish(ctx context.Context, id string) error {
	p.unpublished = append(p.unpublished, id)
	return errors.New("record already gone")
}

func TestStartAndRemove_Publisher(t *testing.T) {
	pub := &recordingPublisher{}
	env := newTestEnv(t, func(o *Options) { o.Publisher = pub })
	p, files := nodeProject()
	env.addProject(t, p, files)

	require.NoError(t, env.run(t, OpStart).Err)
	assert.Equal(t, []string{testProjectID}, pub.published)

	require.NoError(t, env.m.Remove(context.Background(), testProjectID), "unpublish failures are logged only")
	assert.Equal(t, []string{testProjectID}, pub.unpublished)
}

func TestRestart(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	r := env.run(t, OpRestart)
	assert.Equal(t, StatusError, r.Info.Status)
	assert.Equal(t, KindNotFound, r.Kind())
	assert.ErrorIs(t, r.Err, ErrNoContainer)

	require.NoError(t, env.run(t, OpStart).Err)
	env.engine.Kill(env.m.ContainerName(testProjectID))

	r = env.run(t, OpRestart)
	require.NoError(t, r.Err)
	assert.Equal(t, StatusRunning, r.Info.Status)
	assert.NotEmpty(t, r.Info.ServerURL)
	assert.Equal(t, 1, env.engine.Count("restart"))
	assert.Equal(t, 1, env.engine.Count("run"), "restart does not recreate")
	assert.Equal(t, 1, env.engine.Count("build"))
}

func TestRestart_UsesPortRecordedAtStart(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	dir := env.addProject(t, p, files)
	ctx := context.Background()

	started := env.run(t, OpStart)
	require.NoError(t, started.Err)
	name := env.m.ContainerName(testProjectID)
	c, ok := env.engine.Container(name)
	require.True(t, ok)
	assert.Equal(t, "3000", c.Labels[PortLabel])

	// The recipe changes on disk without a rebuild
	recipe := strings.Replace(files["Dockerfile"], "EXPOSE 3000", "EXPOSE 8081", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(recipe), 0644))
	env.engine.Kill(name)

	r := env.run(t, OpRestart)
	require.NoError(t, r.Err)
	assert.Equal(t, started.Info.ServerURL, r.Info.ServerURL)

	url, ok := env.m.URL(ctx, testProjectID)
	require.True(t, ok)
	assert.Equal(t, started.Info.ServerURL, url)
}

func TestConfigureAutoRestart_RunningStaysRunning(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	require.NoError(t, env.run(t, OpStart).Err)
	name := env.m.ContainerName(testProjectID)
	rmBefore := env.engine.Count("rm")

	require.NoError(t, env.m.ConfigureAutoRestart(context.Background(), testProjectID, true))

	c, _ := env.engine.Container(name)
	assert.Equal(t, container.RestartUnlessStopped, c.RestartPolicy)
	assert.Equal(t, StatusRunning, env.m.Status(context.Background(), testProjectID))
	assert.Equal(t, rmBefore, env.engine.Count("rm"))
	assert.Zero(t, env.engine.Count("restart"))

	saved, err := env.repo.FindByID(context.Background(), testProjectID)
	require.NoError(t, err)
	assert.True(t, saved.AutoRestartEnabled)

	require.NoError(t, env.m.ConfigureAutoRestart(context.Background(), testProjectID, false))
	c, _ = env.engine.Container(name)
	assert.Equal(t, container.RestartPolicy("on-failure:3"), c.RestartPolicy)
}

func TestConfigureAutoRestart_NotRunning(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	require.NoError(t, env.m.ConfigureAutoRestart(context.Background(), testProjectID, true))
	assert.Zero(t, env.engine.Count("update"))

	saved, err := env.repo.FindByID(context.Background(), testProjectID)
	require.NoError(t, err)
	assert.True(t, saved.AutoRestartEnabled)

	err = env.m.ConfigureAutoRestart(context.Background(), "missing", true)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestStatus_EngineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetError("status", &container.ExitError{Code: 1, Stderr: "daemon unavailable"})
	assert.Equal(t, StatusError, env.m.Status(context.Background(), testProjectID))
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	env.engine.Usage = container.Stats{CPUPercent: 1.5, MemoryPercent: 12.25}

	_, err := env.m.Metrics(context.Background(), p)
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, env.run(t, OpStart).Err)
	stats, err := env.m.Metrics(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1.5, stats.CPUPercent)
	assert.Equal(t, 12.25, stats.MemoryPercent)
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)

	_, err := env.m.Logs(context.Background(), testProjectID, 50)
	assert.ErrorIs(t, err, ErrNoContainer)

	require.NoError(t, env.run(t, OpStart).Err)
	out, err := env.m.Logs(context.Background(), testProjectID, 50)
	require.NoError(t, err)
	assert.Contains(t, out, "listening on :3000")
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	require.NoError(t, env.run(t, OpStart).Err)

	require.NoError(t, env.m.Remove(context.Background(), testProjectID))

	name := env.m.ContainerName(testProjectID)
	_, ok := env.engine.Container(name)
	assert.False(t, ok)
	assert.False(t, env.engine.HasImage(name))
	_, stored, _ := env.cache.Stored(testProjectID)
	assert.False(t, stored)
}

func TestRemove_DeletesRecord(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	ctx := context.Background()

	require.NoError(t, env.m.Remove(ctx, testProjectID))
	_, err := env.repo.FindByID(ctx, testProjectID)
	assert.ErrorIs(t, err, project.ErrNotFound)

	r := env.run(t, OpStart)
	assert.Equal(t, KindNotFound, r.Kind())
	assert.Zero(t, env.engine.Count("run"))

	assert.NoError(t, env.m.Remove(ctx, testProjectID), "removing twice is fine")
}

func TestRemove_QueuedStartDoesNotRecreate(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	ctx := context.Background()
	require.NoError(t, env.run(t, OpStart).Err)

	unlock := env.m.locks.Lock(testProjectID)
	before := env.m.ExecuteOperation(ctx, testProjectID, OpStart)
	removed := make(chan error, 1)
	go func() { removed <- env.m.Remove(ctx, testProjectID) }()
	require.Eventually(t, func() bool { return queued(env.m.locks, testProjectID) == 3 }, time.Second, time.Millisecond)
	after := env.m.ExecuteOperation(ctx, testProjectID, OpStart)
	unlock()

	select {
	case err := <-removed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("remove did not finish")
	}

	assert.NoError(t, before.Await(ctx).Err, "start queued ahead of remove still runs")
	r := after.Await(ctx)
	assert.Equal(t, KindNotFound, r.Kind())
	assert.Equal(t, StatusError, r.Info.Status)

	assert.Zero(t, env.engine.ContainersLabeled(ProjectLabel, testProjectID))
	_, err := env.repo.FindByID(ctx, testProjectID)
	assert.ErrorIs(t, err, project.ErrNotFound)
}

func TestAwait_TimeoutDoesNotCancel(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	env.engine.BuildGate = make(chan struct{})

	f := env.m.ExecuteOperation(context.Background(), testProjectID, OpStart)
	assert.True(t, env.m.Pending(testProjectID))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := f.Await(ctx)
	assert.Equal(t, StatusError, r.Info.Status)
	assert.Equal(t, KindTimeout, r.Kind())

	close(env.engine.BuildGate)
	select {
	case <-f.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not finish after the caller gave up")
	}
	final := f.Await(context.Background())
	require.NoError(t, final.Err)
	assert.Equal(t, StatusRunning, final.Info.Status)
	assert.Eventually(t, func() bool { return !env.m.Pending(testProjectID) }, time.Second, time.Millisecond)
}

func TestExecuteOperation_SerializedPerProject(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	env.engine.BuildGate = make(chan struct{})

	start := env.m.ExecuteOperation(context.Background(), testProjectID, OpStart)
	require.Eventually(t, func() bool { return env.engine.Count("build") == 1 }, time.Second, time.Millisecond)
	stop := env.m.ExecuteOperation(context.Background(), testProjectID, OpStop)

	select {
	case <-stop.Done():
		t.Fatal("stop ran while start held the project")
	case <-time.After(50 * time.Millisecond):
	}

	close(env.engine.BuildGate)
	assert.Equal(t, StatusRunning, start.Await(context.Background()).Info.Status)
	assert.Equal(t, StatusStopped, stop.Await(context.Background()).Info.Status)
	assert.Zero(t, env.engine.ContainersLabeled(ProjectLabel, testProjectID))
}

func TestExecuteOperation_RunsInSubmissionOrder(t *testing.T) {
	env := newTestEnv(t)
	p, files := nodeProject()
	env.addProject(t, p, files)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, env.run(t, OpStart).Err)

		// Hold the project so both operations queue before either runs
		unlock := env.m.locks.Lock(testProjectID)
		start := env.m.ExecuteOperation(ctx, testProjectID, OpStart)
		stop := env.m.ExecuteOperation(ctx, testProjectID, OpStop)
		unlock()

		assert.Equal(t, StatusRunning, start.Await(ctx).Info.Status, "round %d", i)
		assert.Equal(t, StatusStopped, stop.Await(ctx).Info.Status, "round %d", i)
		assert.Equal(t, StatusStopped, env.m.Status(ctx, testProjectID), "round %d", i)
		assert.Zero(t, env.engine.ContainersLabeled(ProjectLabel, testProjectID), "round %d", i)
	}
}

func TestExecuteOperation_UnknownOperation(t *testing.T) {
	env := newTestEnv(t)

	r := env.m.ExecuteOperation(context.Background(), testProjectID, Operation("DEPLOY")).Await(context.Background())
	assert.Equal(t, StatusError, r.Info.Status)
	assert.Equal(t, KindConfiguration, r.Kind())
	assert.ErrorIs(t, r.Err, ErrUnknownOperation)
}

func TestExecuteOperation_AfterClose(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.m.Close(context.Background()))

	r := env.m.ExecuteOperation(context.Background(), testProjectID, OpStop).Await(context.Background())
	assert.ErrorIs(t, r.Err, ErrClosed)
}

func TestStart_EmitsEvents(t *testing.T) {
	bus := events.NewBus(64)
	var got []events.EventType
	bus.Subscribe(func(e events.Event) { got = append(got, e.Type) })

	env := newTestEnv(t, func(o *Options) { o.Bus = bus })
	p, files := nodeProject()
	env.addProject(t, p, files)

	require.NoError(t, env.run(t, OpStart).Err)
	require.NoError(t, env.run(t, OpStart).Err)
	require.NoError(t, bus.Close())

	assert.Equal(t, []events.EventType{
		events.BuildStarted,
		events.BuildCompleted,
		events.ContainerStarted,
		events.BuildSkipped,
		events.ContainerStarted,
	}, got)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
