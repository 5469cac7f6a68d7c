package container

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
)

// CLIEngine implements Engine on top of the docker/podman CLI.
type CLIEngine struct {
	runner Runner
}

// NewCLIEngine creates an Engine that issues commands through runner.
func NewCLIEngine(runner Runner) *CLIEngine {
	return &CLIEngine{runner: runner}
}

// Build builds an image tagged tag from the recipe in contextDir.
func (e *CLIEngine) Build(ctx context.Context, contextDir, tag string) error {
	if _, err := e.runner.Run(ctx, "build", "-t", tag, contextDir); err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	return nil
}

// ImageExists reports whether an image with the given tag is present.
func (e *CLIEngine) ImageExists(ctx context.Context, tag string) (bool, error) {
	_, err := e.runner.Run(ctx, "image", "inspect", "--format", "{{.Id}}", tag)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to inspect image %s: %w", tag, err)
}

// RemoveImage removes an image. A missing image is not an error.
func (e *CLIEngine) RemoveImage(ctx context.Context, tag string) error {
	if _, err := e.runner.Run(ctx, "rmi", "-f", tag); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to remove image %s: %w", tag, err)
	}
	return nil
}

// runArgs returns the CLI arguments for a detached run.
func runArgs(cfg RunConfig) []string {
	args := []string{"run", "-d", "--name", cfg.Name}

	if cfg.ContainerPort > 0 {
		args = append(args, "-p", fmt.Sprintf("0:%d", cfg.ContainerPort))
	}
	if cfg.Network != "" {
		args = append(args, "--network", cfg.Network)
	}
	if cfg.RestartPolicy != "" {
		args = append(args, "--restart", string(cfg.RestartPolicy))
	}

	// Sorted so the invocation is reproducible
	for _, k := range sortedKeys(cfg.Labels) {
		args = append(args, "--label", k+"="+cfg.Labels[k])
	}
	for _, k := range sortedKeys(cfg.Env) {
		args = append(args, "-e", k+"="+cfg.Env[k])
	}

	return append(args, cfg.Image)
}

// Run creates and starts a detached container.
func (e *CLIEngine) Run(ctx context.Context, cfg RunConfig) (ContainerID, error) {
	output, err := e.runner.Run(ctx, runArgs(cfg)...)
	if err != nil {
		return "", fmt.Errorf("failed to run container %s: %w", cfg.Name, err)
	}

	// Pull progress can precede the ID; the ID is always the last line
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return ContainerID(strings.TrimSpace(lines[len(lines)-1])), nil
}

// RemoveForce removes a container whether or not it is running.
func (e *CLIEngine) RemoveForce(ctx context.Context, name string) error {
	if _, err := e.runner.Run(ctx, "rm", "-f", name); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// Restart restarts an existing container in place.
func (e *CLIEngine) Restart(ctx context.Context, name string) error {
	if _, err := e.runner.Run(ctx, "restart", name); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", name, err)
	}
	return nil
}

// Status returns the engine status line for the named container.
func (e *CLIEngine) Status(ctx context.Context, name string) (string, error) {
	// Anchored so "project-1" does not match "project-10"
	output, err := e.runner.Run(ctx, "ps", "-a",
		"--filter", "name=^"+name+"$",
		"--format", "{{.Status}}")
	if err != nil {
		return "", fmt.Errorf("failed to list container %s: %w", name, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(line), nil
}

// HostPort returns the host port published for containerPort/tcp.
func (e *CLIEngine) HostPort(ctx context.Context, name string, containerPort int) (int, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
	if err != nil {
		return 0, fmt.Errorf("invalid container port %d: %w", containerPort, err)
	}

	output, err := e.runner.Run(ctx, "port", name, string(port))
	if err != nil {
		return 0, fmt.Errorf("failed to read port mapping for %s: %w", name, err)
	}
	return ParseHostPort(output)
}

// Label reads one label from the container's configuration.
func (e *CLIEngine) Label(ctx context.Context, name, key string) (string, error) {
	output, err := e.runner.Run(ctx, "inspect",
		"--format", fmt.Sprintf("{{index .Config.Labels %q}}", key),
		name)
	if err != nil {
		return "", fmt.Errorf("failed to inspect label %s of %s: %w", key, name, err)
	}
	value := strings.TrimSpace(output)
	if value == "<no value>" {
		return "", nil
	}
	return value, nil
}

// RestartPolicy returns the container's current restart policy.
func (e *CLIEngine) RestartPolicy(ctx context.Context, name string) (RestartPolicy, error) {
	output, err := e.runner.Run(ctx, "inspect",
		"--format", "{{.HostConfig.RestartPolicy.Name}}:{{.HostConfig.RestartPolicy.MaximumRetryCount}}",
		name)
	if err != nil {
		return "", fmt.Errorf("failed to inspect restart policy for %s: %w", name, err)
	}
	return ParseRestartPolicy(output), nil
}

// UpdateRestartPolicy changes the restart policy without restarting.
func (e *CLIEngine) UpdateRestartPolicy(ctx context.Context, name string, policy RestartPolicy) error {
	if _, err := e.runner.Run(ctx, "update", "--restart", string(policy), name); err != nil {
		return fmt.Errorf("failed to update restart policy for %s: %w", name, err)
	}
	return nil
}

// Stats samples CPU and memory usage once.
func (e *CLIEngine) Stats(ctx context.Context, name string) (Stats, error) {
	output, err := e.runner.Run(ctx, "stats", "--no-stream",
		"--format", "{{.CPUPerc}};{{.MemPerc}}", name)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read stats for %s: %w", name, err)
	}
	return ParseStats(output)
}

// Logs returns the last tail lines of the container's output.
func (e *CLIEngine) Logs(ctx context.Context, name string, tail int) (string, error) {
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, name)

	output, err := e.runner.RunCombined(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for %s: %w", name, err)
	}
	return output, nil
}

// NetworkExists reports whether a network with the given name exists.
func (e *CLIEngine) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := e.runner.Run(ctx, "network", "inspect", "--format", "{{.Name}}", name)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to inspect network %s: %w", name, err)
}

// CreateNetwork creates a bridge network.
func (e *CLIEngine) CreateNetwork(ctx context.Context, name string) error {
	if _, err := e.runner.Run(ctx, "network", "create", name); err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Verify CLIEngine implements Engine interface
var _ Engine = (*CLIEngine)(nil)
