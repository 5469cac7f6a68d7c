package client

import "time"

// Project is a deployed project as reported by the daemon.
type Project struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	OwnerID            string    `json:"owner_id"`
	AutoRestartEnabled bool      `json:"auto_restart_enabled"`
	Stack              string    `json:"stack"`
	Source             string    `json:"source,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateRequest creates a project from a git repository.
type CreateRequest struct {
	Name        string `json:"name"`
	RepoURL     string `json:"repo_url"`
	Ref         string `json:"ref,omitempty"`
	AutoRestart bool   `json:"auto_restart"`
}

// Info is the reported state of a project's container.
type Info struct {
	Status    string `json:"status"`
	ServerURL string `json:"server_url,omitempty"`
}

// OperationResult is the outcome of START, STOP or RESTART. Error and Kind
// are set when Status is ERROR.
type OperationResult struct {
	Info
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Usage is a container's resource usage.
type Usage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ProjectDetails combines a project with its live state.
type ProjectDetails struct {
	Project *Project `json:"project"`
	Status  string   `json:"status"`
	URL     string   `json:"url,omitempty"`
	Usage   *Usage   `json:"usage,omitempty"`
}
