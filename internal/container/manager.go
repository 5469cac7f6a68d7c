package container

import "context"

// Engine provides the container engine operations the lifecycle manager
// needs. Implementations must be safe for concurrent use.
type Engine interface {
	// Build builds an image tagged tag from the recipe in contextDir.
	Build(ctx context.Context, contextDir, tag string) error

	// ImageExists reports whether an image with the given tag is present.
	ImageExists(ctx context.Context, tag string) (bool, error)

	// RemoveImage removes an image. A missing image is not an error.
	RemoveImage(ctx context.Context, tag string) error

	// Run creates and starts a detached container.
	Run(ctx context.Context, cfg RunConfig) (ContainerID, error)

	// RemoveForce removes a container whether or not it is running.
	// A missing container is not an error.
	RemoveForce(ctx context.Context, name string) error

	// Restart restarts an existing container in place.
	Restart(ctx context.Context, name string) error

	// Status returns the engine's status line for the named container
	// (e.g. "Up 3 minutes", "Exited (1) 2 seconds ago"), or "" if there
	// is no such container.
	Status(ctx context.Context, name string) (string, error)

	// HostPort returns the host port published for containerPort/tcp.
	HostPort(ctx context.Context, name string, containerPort int) (int, error)

	// Label returns the value of a container label, or "" when unset.
	Label(ctx context.Context, name, key string) (string, error)

	// RestartPolicy returns the container's current restart policy.
	RestartPolicy(ctx context.Context, name string) (RestartPolicy, error)

	// UpdateRestartPolicy changes the restart policy without restarting.
	UpdateRestartPolicy(ctx context.Context, name string, policy RestartPolicy) error

	// Stats samples CPU and memory usage once.
	Stats(ctx context.Context, name string) (Stats, error)

	// Logs returns the last tail lines of the container's output.
	Logs(ctx context.Context, name string, tail int) (string, error)

	// NetworkExists reports whether a network with the given name exists.
	NetworkExists(ctx context.Context, name string) (bool, error)

	// CreateNetwork creates a bridge network.
	CreateNetwork(ctx context.Context, name string) error
}
