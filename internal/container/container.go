package container

import (
	"fmt"
	"strings"
)

// ContainerID is the full container ID printed by `docker run -d`.
type ContainerID string

// RestartPolicy is an engine restart policy string such as "unless-stopped"
// or "on-failure:3".
type RestartPolicy string

const (
	// RestartUnlessStopped restarts the container until it is explicitly stopped.
	RestartUnlessStopped RestartPolicy = "unless-stopped"

	// RestartNo never restarts the container.
	RestartNo RestartPolicy = "no"
)

// RestartOnFailure returns a bounded on-failure policy.
func RestartOnFailure(maxRetries int) RestartPolicy {
	if maxRetries <= 0 {
		return "on-failure"
	}
	return RestartPolicy(fmt.Sprintf("on-failure:%d", maxRetries))
}

// Name returns the policy name without the retry count.
func (p RestartPolicy) Name() string {
	name, _, _ := strings.Cut(string(p), ":")
	return name
}

// String returns the string representation of the policy.
func (p RestartPolicy) String() string {
	return string(p)
}

// RunConfig specifies a detached container run.
type RunConfig struct {
	// Name is the container name (e.g., "project-01HX...")
	Name string

	// Image is the image tag to run
	Image string

	// ContainerPort is published to an engine-assigned host port
	ContainerPort int

	// Network is the network to attach to (optional)
	Network string

	// RestartPolicy is passed to --restart (optional)
	RestartPolicy RestartPolicy

	// Labels are attached with --label
	Labels map[string]string

	// Env contains environment variables to set in the container
	Env map[string]string
}

// Stats is a point-in-time resource usage sample.
type Stats struct {
	CPUPercent    float64
	MemoryPercent float64
}
