package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/RevCBH/shipyard/internal/container"
)

// FakeContainer is a container held by FakeEngine.
type FakeContainer struct {
	Name          string
	Image         string
	Running       bool
	HostPort      int
	ContainerPort int
	Network       string
	RestartPolicy container.RestartPolicy
	Labels        map[string]string
}

// FakeEngine is an in-memory container.Engine. It records how often each
// operation ran and lets tests inject failures per operation.
type FakeEngine struct {
	mu         sync.Mutex
	images     map[string]bool
	containers map[string]*FakeContainer
	networks   map[string]bool
	nextPort   int
	counts     map[string]int

	// Errors maps an operation name ("build", "run", "status", ...) to
	// the error it returns.
	Errors map[string]error

	// BuildGate, when set, blocks Build until it is closed.
	BuildGate chan struct{}

	// HidePorts makes HostPort fail, as if the mapping never appeared.
	HidePorts bool

	// Usage is returned by Stats.
	Usage container.Stats
}

// NewFakeEngine creates an engine with no images, containers or networks.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		images:     make(map[string]bool),
		containers: make(map[string]*FakeContainer),
		networks:   make(map[string]bool),
		nextPort:   32768,
		counts:     make(map[string]int),
		Errors:     make(map[string]error),
	}
}

// SetError makes op fail with err (nil clears it).
func (f *FakeEngine) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, op)
		return
	}
	f.Errors[op] = err
}

// Count returns how many times op was invoked.
func (f *FakeEngine) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

// Container returns a copy of the named container.
func (f *FakeEngine) Container(name string) (FakeContainer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return FakeContainer{}, false
	}
	return *c, true
}

// ContainersLabeled counts containers carrying label=value.
func (f *FakeEngine) ContainersLabeled(label, value string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.containers {
		if c.Labels[label] == value {
			n++
		}
	}
	return n
}

// HasImage reports whether tag was built.
func (f *FakeEngine) HasImage(tag string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[tag]
}

// DeleteImage removes tag behind the manager's back.
func (f *FakeEngine) DeleteImage(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, tag)
}

// Kill marks the named container as exited.
func (f *FakeEngine) Kill(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[name]; ok {
		c.Running = false
	}
}

// begin counts op and returns its injected error.
func (f *FakeEngine) begin(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[op]++
	return f.Errors[op]
}

func noSuch(kind, name string) error {
	return &container.ExitError{
		Args:   []string{kind, name},
		Code:   1,
		Stderr: fmt.Sprintf("Error: No such %s: %s", kind, name),
	}
}

func (f *FakeEngine) Build(ctx context.Context, contextDir, tag string) error {
	if err := f.begin("build"); err != nil {
		return err
	}
	if f.BuildGate != nil {
		select {
		case <-f.BuildGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[tag] = true
	return nil
}

func (f *FakeEngine) ImageExists(ctx context.Context, tag string) (bool, error) {
	if err := f.begin("image_exists"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[tag], nil
}

func (f *FakeEngine) RemoveImage(ctx context.Context, tag string) error {
	if err := f.begin("rmi"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, tag)
	return nil
}

func (f *FakeEngine) Run(ctx context.Context, cfg container.RunConfig) (container.ContainerID, error) {
	if err := f.begin("run"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.images[cfg.Image] {
		return "", &container.ExitError{Args: []string{"run", cfg.Image}, Code: 125, Stderr: "Unable to find image '" + cfg.Image + "' locally"}
	}
	if _, exists := f.containers[cfg.Name]; exists {
		return "", &container.ExitError{Args: []string{"run", cfg.Name}, Code: 125, Stderr: fmt.Sprintf("Conflict. The container name %q is already in use", "/"+cfg.Name)}
	}
	if cfg.Network != "" && !f.networks[cfg.Network] {
		return "", noSuch("network", cfg.Network)
	}

	f.nextPort++
	labels := make(map[string]string, len(cfg.Labels))
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	f.containers[cfg.Name] = &FakeContainer{
		Name:          cfg.Name,
		Image:         cfg.Image,
		Running:       true,
		HostPort:      f.nextPort,
		ContainerPort: cfg.ContainerPort,
		Network:       cfg.Network,
		RestartPolicy: cfg.RestartPolicy,
		Labels:        labels,
	}
	return container.ContainerID(fmt.Sprintf("%064d", f.nextPort)), nil
}

func (f *FakeEngine) RemoveForce(ctx context.Context, name string) error {
	if err := f.begin("rm"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

func (f *FakeEngine) Restart(ctx context.Context, name string) error {
	if err := f.begin("restart"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return noSuch("container", name)
	}
	c.Running = true
	return nil
}

func (f *FakeEngine) Status(ctx context.Context, name string) (string, error) {
	if err := f.begin("status"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	switch {
	case !ok:
		return "", nil
	case c.Running:
		return "Up 2 seconds", nil
	default:
		return "Exited (137) 1 second ago", nil
	}
}

func (f *FakeEngine) HostPort(ctx context.Context, name string, containerPort int) (int, error) {
	if err := f.begin("port"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return 0, noSuch("container", name)
	}
	if f.HidePorts || !c.Running || c.ContainerPort != containerPort {
		return 0, container.ErrNoPortMapping
	}
	return c.HostPort, nil
}

func (f *FakeEngine) Label(ctx context.Context, name, key string) (string, error) {
	if err := f.begin("inspect"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return "", noSuch("container", name)
	}
	return c.Labels[key], nil
}

func (f *FakeEngine) RestartPolicy(ctx context.Context, name string) (container.RestartPolicy, error) {
	if err := f.begin("inspect"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return "", noSuch("container", name)
	}
	return c.RestartPolicy, nil
}

func (f *FakeEngine) UpdateRestartPolicy(ctx context.Context, name string, policy container.RestartPolicy) error {
	if err := f.begin("update"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return noSuch("container", name)
	}
	c.RestartPolicy = policy
	return nil
}

func (f *FakeEngine) Stats(ctx context.Context, name string) (container.Stats, error) {
	if err := f.begin("stats"); err != nil {
		return container.Stats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return container.Stats{}, noSuch("container", name)
	}
	return f.Usage, nil
}

func (f *FakeEngine) Logs(ctx context.Context, name string, tail int) (string, error) {
	if err := f.begin("logs"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return "", noSuch("container", name)
	}
	return fmt.Sprintf("listening on :%d\n", f.containers[name].ContainerPort), nil
}

func (f *FakeEngine) NetworkExists(ctx context.Context, name string) (bool, error) {
	if err := f.begin("network_inspect"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks[name], nil
}

func (f *FakeEngine) CreateNetwork(ctx context.Context, name string) error {
	if err := f.begin("network_create"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.networks[name] {
		return &container.ExitError{Args: []string{"network", "create", name}, Code: 1, Stderr: "network with name " + name + " already exists"}
	}
	f.networks[name] = true
	return nil
}

var _ container.Engine = (*FakeEngine)(nil)
