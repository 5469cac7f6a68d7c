package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/container"
	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/imagespec"
	"github.com/RevCBH/shipyard/internal/logging"
	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/stack"
)

// ProjectLabel is attached to every container this package creates.
const ProjectLabel = "shipyard.project"

// PortLabel records the container port published when the container was
// created.
const PortLabel = "shipyard.port"

// defaultContainerPort is published when neither the recipe nor the stack
// names a port.
const defaultContainerPort = 8080

// BuildCache decides whether an image must be rebuilt.
type BuildCache interface {
	ShouldRebuild(projectID, projectPath string) bool
	RecordBuild(projectID, projectPath string) error
	Remove(projectID string) error
}

// NetworkEnsurer returns the name of the network containers attach to,
// creating it if needed.
type NetworkEnsurer interface {
	EnsureNetwork(ctx context.Context) (string, error)
}

// Publisher makes a project reachable under its routing hostname.
type Publisher interface {
	Publish(ctx context.Context, projectID string) error
	Unpublish(ctx context.Context, projectID string) error
}

// Options configures a Manager. Engine, Repo, Storage and Network are
// required.
type Options struct {
	Engine    container.Engine
	Repo      project.Repository
	Storage   project.StorageResolver
	Cache     BuildCache
	Network   NetworkEnsurer
	Publisher Publisher
	Routing   Routing
	Bus       *events.Bus
	Logger    *zap.Logger

	// Workers bounds concurrent operations (default 10)
	Workers int

	// OperationTimeout bounds how long Run waits for a result (default 30s)
	OperationTimeout time.Duration

	// OnFailureRetries is used for on-failure:<N> when auto-restart is off
	OnFailureRetries int

	// ContainerPrefix is prepended to the lowercased project id
	ContainerPrefix string

	PortDiscoveryAttempts int
	PortDiscoveryInterval time.Duration
}

// Manager executes lifecycle operations. All operations on one project
// are mutually exclusive; operations on different projects run in
// parallel up to Options.Workers.
type Manager struct {
	engine    container.Engine
	repo      project.Repository
	storage   project.StorageResolver
	cache     BuildCache
	network   NetworkEnsurer
	publisher Publisher
	routing   Routing
	bus       *events.Bus
	logger    *zap.Logger

	timeout          time.Duration
	onFailureRetries int
	prefix           string
	portAttempts     int
	portInterval     time.Duration

	pool  *pool
	locks *keyedMutex

	mu      sync.Mutex
	pending map[string]int
}

// New creates a Manager and starts its worker pool. Call Close to stop it.
func New(opts Options) (*Manager, error) {
	switch {
	case opts.Engine == nil:
		return nil, errors.New("lifecycle: engine is required")
	case opts.Repo == nil:
		return nil, errors.New("lifecycle: project repository is required")
	case opts.Storage == nil:
		return nil, errors.New("lifecycle: storage resolver is required")
	case opts.Network == nil:
		return nil, errors.New("lifecycle: network provisioner is required")
	}

	m := &Manager{
		engine:           opts.Engine,
		repo:             opts.Repo,
		storage:          opts.Storage,
		cache:            opts.Cache,
		network:          opts.Network,
		publisher:        opts.Publisher,
		routing:          opts.Routing,
		bus:              opts.Bus,
		logger:           logging.OrNop(opts.Logger),
		timeout:          opts.OperationTimeout,
		onFailureRetries: opts.OnFailureRetries,
		prefix:           opts.ContainerPrefix,
		portAttempts:     opts.PortDiscoveryAttempts,
		portInterval:     opts.PortDiscoveryInterval,
		locks:            newKeyedMutex(),
		pending:          make(map[string]int),
	}
	if m.cache == nil {
		m.cache = alwaysRebuild{}
	}
	if m.timeout <= 0 {
		m.timeout = 30 * time.Second
	}
	if m.prefix == "" {
		m.prefix = "project-"
	}
	if m.portAttempts < 1 {
		m.portAttempts = 1
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 10
	}
	m.pool = newPool(workers)
	return m, nil
}

// ContainerName returns the container name and image tag for a project.
// Image tags must be lowercase.
func (m *Manager) ContainerName(projectID string) string {
	return m.prefix + strings.ToLower(projectID)
}

// OperationTimeout is the default wait used by Run.
func (m *Manager) OperationTimeout() time.Duration {
	return m.timeout
}

// ExecuteOperation schedules op on the worker pool and returns
// immediately. The operation runs on the manager's own context: callers
// that stop waiting do not cancel it.
func (m *Manager) ExecuteOperation(ctx context.Context, projectID string, op Operation) *Future {
	switch op {
	case OpStart, OpStop, OpRestart:
	default:
		return Completed(errorResult(fmt.Errorf("%w: %q", ErrUnknownOperation, op)))
	}
	if err := ctx.Err(); err != nil {
		return Completed(errorResult(err))
	}

	f := newFuture()
	m.markPending(projectID, 1)
	// The turn is taken here, on the caller's goroutine, so operations for
	// one project run in submission order.
	turn := m.locks.Reserve(projectID)
	err := m.pool.submit(turn.ready, func(ctx context.Context) {
		r := m.safeExecute(ctx, projectID, op)
		turn.Release()
		m.markPending(projectID, -1)
		f.resolve(r)
	})
	if err != nil {
		turn.Release()
		m.markPending(projectID, -1)
		return Completed(errorResult(err))
	}
	return f
}

// Run executes op and waits up to the operation timeout for its result.
func (m *Manager) Run(ctx context.Context, projectID string, op Operation) Result {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.ExecuteOperation(ctx, projectID, op).Await(ctx)
}

// Pending reports whether an operation for projectID is queued or running.
func (m *Manager) Pending(projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[projectID] > 0
}

func (m *Manager) markPending(projectID string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[projectID] += delta
	if m.pending[projectID] <= 0 {
		delete(m.pending, projectID)
	}
}

// Stats returns worker pool statistics.
func (m *Manager) Stats() PoolStats {
	return m.pool.stats()
}

// safeExecute turns a panicking operation into an ERROR result so its
// Future still resolves.
func (m *Manager) safeExecute(ctx context.Context, projectID string, op Operation) (r Result) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("operation panicked",
				zap.String("project", projectID),
				zap.String("operation", string(op)),
				zap.Any("panic", rec))
			r = errorResult(fmt.Errorf("%s %s panicked: %v", op, projectID, rec))
		}
	}()
	return m.execute(ctx, projectID, op)
}

// execute runs op; the caller holds the project's turn.
func (m *Manager) execute(ctx context.Context, projectID string, op Operation) Result {
	started := time.Now()
	var r Result
	switch op {
	case OpStart:
		r = m.start(ctx, projectID)
	case OpStop:
		r = m.stop(ctx, projectID)
	case OpRestart:
		r = m.restart(ctx, projectID)
	}
	elapsed := time.Since(started)

	operationsTotal.WithLabelValues(string(op), string(r.Info.Status)).Inc()
	operationDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())

	if r.Err != nil {
		m.logger.Warn("operation failed",
			zap.String("project", projectID),
			zap.String("operation", string(op)),
			zap.String("kind", string(r.Kind())),
			zap.Duration("elapsed", elapsed),
			zap.Error(r.Err))
		m.bus.Emit(events.NewEvent(events.ContainerFailed, projectID).
			WithPayload(map[string]any{"operation": op, "kind": r.Kind()}).
			WithError(r.Err))
		return r
	}

	m.logger.Info("operation completed",
		zap.String("project", projectID),
		zap.String("operation", string(op)),
		zap.String("status", string(r.Info.Status)),
		zap.Duration("elapsed", elapsed))
	return r
}

func (m *Manager) findProject(ctx context.Context, projectID string) (*project.Project, error) {
	p, err := m.repo.FindByID(ctx, projectID)
	if errors.Is(err, project.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	return p, nil
}

// start builds when needed, replaces any existing container and reports
// the URL of the new one.
func (m *Manager) start(ctx context.Context, projectID string) Result {
	p, err := m.findProject(ctx, projectID)
	if err != nil {
		return errorResult(err)
	}

	dir := m.storage.ProjectPath(p)
	if !stack.HasRecipe(dir) {
		if p.Stack == stack.Unknown {
			return errorResult(fmt.Errorf("%w: %w: %s", ErrRecipeMissing, ErrUnknownStack, filepath.Join(dir, stack.RecipeFile)))
		}
		return errorResult(fmt.Errorf("%w: %s", ErrRecipeMissing, filepath.Join(dir, stack.RecipeFile)))
	}

	name := m.ContainerName(p.ID)
	if err := m.ensureImage(ctx, p, dir, name); err != nil {
		return errorResult(err)
	}

	// One container per project: whatever exists is replaced
	if err := m.engine.RemoveForce(ctx, name); err != nil {
		return errorResult(engineErr(err))
	}

	networkName, err := m.network.EnsureNetwork(ctx)
	if err != nil {
		return errorResult(engineErr(err))
	}

	port := m.containerPort(p, dir)
	id, err := m.engine.Run(ctx, container.RunConfig{
		Name:          name,
		Image:         name,
		ContainerPort: port,
		Network:       networkName,
		RestartPolicy: m.restartPolicy(p.AutoRestartEnabled),
		Labels:        map[string]string{ProjectLabel: p.ID, PortLabel: strconv.Itoa(port)},
		Env:           map[string]string{"PORT": strconv.Itoa(port)},
	})
	if err != nil {
		return errorResult(engineErr(err))
	}

	hostPort := m.discoverPort(ctx, name, port)
	url, _ := m.routing.URL(p.ID, hostPort)

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, p.ID); err != nil {
			m.logger.Warn("publish hostname failed", zap.String("project", p.ID), zap.Error(err))
		}
	}

	m.bus.Emit(events.NewEvent(events.ContainerStarted, p.ID).WithPayload(map[string]any{
		"container": string(id),
		"host_port": hostPort,
		"url":       url,
	}))
	return Result{Info: Info{Status: StatusRunning, ServerURL: url}}
}

// ensureImage builds the image unless the fingerprint is unchanged and the
// image is still present.
func (m *Manager) ensureImage(ctx context.Context, p *project.Project, dir, tag string) error {
	rebuild := m.cache.ShouldRebuild(p.ID, dir)
	if !rebuild {
		exists, err := m.engine.ImageExists(ctx, tag)
		if err != nil {
			m.logger.Warn("image lookup failed, rebuilding", zap.String("project", p.ID), zap.Error(err))
		}
		rebuild = err != nil || !exists
	}

	if !rebuild {
		buildsTotal.WithLabelValues("skipped").Inc()
		m.bus.Emit(events.NewEvent(events.BuildSkipped, p.ID))
		return nil
	}

	m.bus.Emit(events.NewEvent(events.BuildStarted, p.ID).WithPayload(map[string]any{"stack": p.Stack}))
	if err := m.engine.Build(ctx, dir, tag); err != nil {
		buildsTotal.WithLabelValues("failed").Inc()
		m.bus.Emit(events.NewEvent(events.BuildFailed, p.ID).WithError(err))
		return engineErr(err)
	}
	buildsTotal.WithLabelValues("built").Inc()
	m.bus.Emit(events.NewEvent(events.BuildCompleted, p.ID))

	if err := m.cache.RecordBuild(p.ID, dir); err != nil {
		m.logger.Warn("record fingerprint failed", zap.String("project", p.ID), zap.Error(err))
	}
	return nil
}

// containerPort prefers the recipe's EXPOSE, then the stack template.
func (m *Manager) containerPort(p *project.Project, dir string) int {
	if port, ok := stack.ExposedPort(dir); ok {
		return port
	}
	if port := imagespec.ContainerPort(p.Stack); port > 0 {
		return port
	}
	return defaultContainerPort
}

// publishedPort returns the container port an existing container was
// created with. The recipe may have changed since, so the current files are
// consulted only for containers without the port label.
func (m *Manager) publishedPort(ctx context.Context, p *project.Project, name string) int {
	value, err := m.engine.Label(ctx, name, PortLabel)
	if err == nil {
		if port, convErr := strconv.Atoi(value); convErr == nil && port > 0 {
			return port
		}
	}
	return m.containerPort(p, m.storage.ProjectPath(p))
}

// discoverPort polls for the published host port and falls back to
// containerPort once attempts are exhausted.
func (m *Manager) discoverPort(ctx context.Context, name string, containerPort int) int {
	var lastErr error
poll:
	for attempt := 1; attempt <= m.portAttempts; attempt++ {
		port, err := m.engine.HostPort(ctx, name, containerPort)
		if err == nil {
			return port
		}
		lastErr = err

		if attempt == m.portAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break poll
		case <-time.After(m.portInterval):
		}
	}

	portFallbacks.Inc()
	m.logger.Warn("port discovery failed, using container port",
		zap.String("container", name),
		zap.Int("port", containerPort),
		zap.Error(fmt.Errorf("%w: %w", ErrDiscovery, lastErr)))
	return containerPort
}

// stop removes the container. A project without one is already stopped.
func (m *Manager) stop(ctx context.Context, projectID string) Result {
	if _, err := m.findProject(ctx, projectID); err != nil {
		return errorResult(err)
	}
	if err := m.engine.RemoveForce(ctx, m.ContainerName(projectID)); err != nil {
		return errorResult(engineErr(err))
	}
	m.bus.Emit(events.NewEvent(events.ContainerStopped, projectID))
	return Result{Info: Info{Status: StatusStopped}}
}

// restart restarts the existing container in place.
func (m *Manager) restart(ctx context.Context, projectID string) Result {
	p, err := m.findProject(ctx, projectID)
	if err != nil {
		return errorResult(err)
	}

	name := m.ContainerName(p.ID)
	line, err := m.engine.Status(ctx, name)
	if err != nil {
		return errorResult(engineErr(err))
	}
	if line == "" {
		return errorResult(fmt.Errorf("%w for project %s", ErrNoContainer, p.ID))
	}
	if err := m.engine.Restart(ctx, name); err != nil {
		return errorResult(engineErr(err))
	}

	hostPort := m.discoverPort(ctx, name, m.publishedPort(ctx, p, name))
	url, _ := m.routing.URL(p.ID, hostPort)

	m.bus.Emit(events.NewEvent(events.ContainerRestarted, p.ID).WithPayload(map[string]any{"url": url}))
	return Result{Info: Info{Status: StatusRunning, ServerURL: url}}
}

// Status queries the engine for the project's container.
func (m *Manager) Status(ctx context.Context, projectID string) Status {
	line, err := m.engine.Status(ctx, m.ContainerName(projectID))
	if err != nil {
		m.logger.Debug("status query failed", zap.String("project", projectID), zap.Error(err))
		return StatusError
	}
	return statusFromLine(line)
}

// statusFromLine maps an engine status line ("Up 5 minutes", "Exited (0)
// 3 hours ago", "") to a Status.
func statusFromLine(line string) Status {
	if strings.HasPrefix(strings.TrimSpace(line), "Up") {
		return StatusRunning
	}
	return StatusStopped
}

// Metrics samples resource usage of a running container.
func (m *Manager) Metrics(ctx context.Context, p *project.Project) (container.Stats, error) {
	switch m.Status(ctx, p.ID) {
	case StatusRunning:
	case StatusError:
		return container.Stats{}, fmt.Errorf("%w: status of %s unavailable", ErrDiscovery, p.ID)
	default:
		return container.Stats{}, fmt.Errorf("%w: %s", ErrNotRunning, p.ID)
	}

	stats, err := m.engine.Stats(ctx, m.ContainerName(p.ID))
	if err != nil {
		return container.Stats{}, engineErr(err)
	}
	return stats, nil
}

// URL returns the external address of a running project.
func (m *Manager) URL(ctx context.Context, projectID string) (string, bool) {
	if m.Status(ctx, projectID) != StatusRunning {
		return "", false
	}
	if m.routing.Mode == RoutingSubdomain {
		return m.routing.URL(projectID, 0)
	}

	p, err := m.repo.FindByID(ctx, projectID)
	if err != nil {
		return "", false
	}
	name := m.ContainerName(projectID)
	port, err := m.engine.HostPort(ctx, name, m.publishedPort(ctx, p, name))
	if err != nil {
		return "", false
	}
	return m.routing.URL(projectID, port)
}

// ConfigureAutoRestart persists the flag and, when the container is
// running, switches its restart policy in place.
func (m *Manager) ConfigureAutoRestart(ctx context.Context, projectID string, enabled bool) error {
	unlock := m.locks.Lock(projectID)
	defer unlock()

	p, err := m.findProject(ctx, projectID)
	if err != nil {
		return err
	}
	p.AutoRestartEnabled = enabled
	if err := m.repo.Save(ctx, p); err != nil {
		return fmt.Errorf("save project %s: %w", projectID, err)
	}

	if m.Status(ctx, projectID) == StatusRunning {
		policy := m.restartPolicy(enabled)
		if err := m.engine.UpdateRestartPolicy(ctx, m.ContainerName(projectID), policy); err != nil {
			return engineErr(err)
		}
		m.logger.Info("restart policy updated",
			zap.String("project", projectID),
			zap.Stringer("policy", policy))
	}

	m.bus.Emit(events.NewEvent(events.AutoRestartChanged, projectID).WithPayload(map[string]any{"enabled": enabled}))
	return nil
}

// Logs returns the last tail lines of the project's container output.
func (m *Manager) Logs(ctx context.Context, projectID string, tail int) (string, error) {
	name := m.ContainerName(projectID)
	line, err := m.engine.Status(ctx, name)
	if err != nil {
		return "", engineErr(err)
	}
	if line == "" {
		return "", fmt.Errorf("%w for project %s", ErrNoContainer, projectID)
	}
	out, err := m.engine.Logs(ctx, name, tail)
	if err != nil {
		return "", engineErr(err)
	}
	return out, nil
}

// Remove deletes a project: its container, its record, its image, its
// fingerprint and its published hostname. The container and the record go
// while the project's turn is held, so an operation queued behind Remove
// finds no project instead of recreating the container. Failures after the
// record is gone are logged only.
func (m *Manager) Remove(ctx context.Context, projectID string) error {
	unlock := m.locks.Lock(projectID)
	defer unlock()

	name := m.ContainerName(projectID)
	if err := m.engine.RemoveForce(ctx, name); err != nil {
		return engineErr(err)
	}
	if err := m.repo.Delete(ctx, projectID); err != nil && !errors.Is(err, project.ErrNotFound) {
		return fmt.Errorf("delete project %s: %w", projectID, err)
	}

	if err := m.engine.RemoveImage(ctx, name); err != nil {
		m.logger.Warn("remove image failed", zap.String("image", name), zap.Error(err))
	}
	if err := m.cache.Remove(projectID); err != nil {
		m.logger.Warn("remove fingerprint failed", zap.String("project", projectID), zap.Error(err))
	}
	if m.publisher != nil {
		if err := m.publisher.Unpublish(ctx, projectID); err != nil {
			m.logger.Warn("unpublish hostname failed", zap.String("project", projectID), zap.Error(err))
		}
	}
	return nil
}

// Close stops accepting operations and waits for running ones until ctx
// expires.
func (m *Manager) Close(ctx context.Context) error {
	return m.pool.shutdown(ctx)
}

func (m *Manager) restartPolicy(autoRestart bool) container.RestartPolicy {
	if autoRestart {
		return container.RestartUnlessStopped
	}
	return container.RestartOnFailure(m.onFailureRetries)
}

func engineErr(err error) error {
	if errors.Is(err, ErrEngine) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEngine, err)
}

// alwaysRebuild is used when no BuildCache is configured.
type alwaysRebuild struct{}

func (alwaysRebuild) ShouldRebuild(string, string) bool { return true }
func (alwaysRebuild) RecordBuild(string, string) error  { return nil }
func (alwaysRebuild) Remove(string) error               { return nil }
