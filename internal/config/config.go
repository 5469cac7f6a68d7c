package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RoutingMode selects how a project's external URL is built.
type RoutingMode string

const (
	// RoutingHostPort yields scheme://host:<published port>.
	RoutingHostPort RoutingMode = "hostport"

	// RoutingSubdomain yields scheme://<container name>.<domain>.
	RoutingSubdomain RoutingMode = "subdomain"
)

// Config holds all configuration for the shipyard daemon and CLI.
// It is immutable after creation via LoadConfig().
type Config struct {
	// Storage locates project sources and daemon state
	Storage StorageConfig `yaml:"storage"`

	// Engine controls the container engine and the operation worker pool
	Engine EngineConfig `yaml:"engine"`

	// Network names the shared routing network
	Network NetworkConfig `yaml:"network"`

	// Routing controls how external URLs are constructed
	Routing RoutingConfig `yaml:"routing"`

	// Monitor controls the auto-restart supervisor
	Monitor MonitorConfig `yaml:"monitor"`

	// Daemon contains listener and pid file settings
	Daemon DaemonConfig `yaml:"daemon"`

	// Auth enables bearer token checks on the HTTP API
	Auth AuthConfig `yaml:"auth"`

	// DNS publishes subdomain records for running projects
	DNS DNSConfig `yaml:"dns"`

	// LogLevel controls log verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogFormat selects "json" or "console" output
	LogFormat string `yaml:"log_format"`
}

// StorageConfig locates on-disk state. Relative paths resolve against the
// directory holding the config file.
type StorageConfig struct {
	// ProjectsDir holds one source tree per project (<dir>/<project id>)
	ProjectsDir string `yaml:"projects_dir"`

	// StateDir holds build fingerprints and other derived state
	StateDir string `yaml:"state_dir"`

	// DBPath is the SQLite project database
	DBPath string `yaml:"db_path"`
}

// EngineConfig controls container engine invocation.
type EngineConfig struct {
	// Runtime is "auto", "docker" or "podman"
	Runtime string `yaml:"runtime"`

	// Workers bounds concurrent lifecycle operations
	Workers int `yaml:"workers"`

	// OperationTimeout is how long callers wait for an operation result
	OperationTimeout string `yaml:"operation_timeout"`

	// OnFailureRetries bounds restarts when auto-restart is disabled
	OnFailureRetries int `yaml:"on_failure_retries"`

	// ContainerPrefix prefixes the project id to form container names
	ContainerPrefix string `yaml:"container_prefix"`

	// PortDiscoveryAttempts is how many times to query the published port
	PortDiscoveryAttempts int `yaml:"port_discovery_attempts"`

	// PortDiscoveryInterval is the pause between port queries
	PortDiscoveryInterval string `yaml:"port_discovery_interval"`
}

// NetworkConfig names the shared network containers join.
type NetworkConfig struct {
	// Name is created when neither it nor Fallback exists
	Name string `yaml:"name"`

	// Fallback is an alternate pre-existing network to reuse (optional)
	Fallback string `yaml:"fallback,omitempty"`
}

// RoutingConfig controls external URL construction.
type RoutingConfig struct {
	Mode   RoutingMode `yaml:"mode"`
	Scheme string      `yaml:"scheme"`

	// Host is used in hostport mode
	Host string `yaml:"host"`

	// Domain is used in subdomain mode
	Domain string `yaml:"domain,omitempty"`
}

// MonitorConfig controls the auto-restart supervisor.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between ticks
	Interval string `yaml:"interval"`

	// RestartRate caps START issuance per second during a tick
	RestartRate float64 `yaml:"restart_rate"`
}

// DaemonConfig holds daemon listener settings.
type DaemonConfig struct {
	// APIAddr is the HTTP API listen address
	APIAddr string `yaml:"api_addr"`

	// HealthSocket is the unix socket serving the gRPC health service
	HealthSocket string `yaml:"health_socket"`

	// PIDFile records the running daemon's pid
	PIDFile string `yaml:"pid_file"`
}

// AuthConfig enables JWT bearer authentication on the HTTP API.
// Authentication is off when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret,omitempty"`
}

// Enabled reports whether bearer tokens are required.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// DNSConfig controls Cloudflare record publication in subdomain mode.
type DNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIToken string `yaml:"api_token,omitempty"`
	ZoneID   string `yaml:"zone_id,omitempty"`

	// Target is the CNAME target (or A record address) records point at
	Target string `yaml:"target,omitempty"`

	Proxied bool `yaml:"proxied"`
}

// OperationTimeoutDuration returns the operation await timeout.
func (c *Config) OperationTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Engine.OperationTimeout)
	return d
}

// PortDiscoveryIntervalDuration returns the pause between port queries.
func (c *Config) PortDiscoveryIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Engine.PortDiscoveryInterval)
	return d
}

// MonitorIntervalDuration returns the supervisor tick interval.
func (c *Config) MonitorIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Monitor.Interval)
	return d
}

// LoadConfig loads configuration from path, or from ~/.shipyard/config.yaml
// when path is empty. It applies defaults, then file values, then
// environment overrides, then resolves relative paths and validates.
//
// A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	baseDir, err := HomeDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(baseDir, ConfigFileName)
	} else {
		baseDir = filepath.Dir(path)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths(baseDir)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) resolvePaths(baseDir string) {
	for _, p := range []*string{
		&c.Storage.ProjectsDir,
		&c.Storage.StateDir,
		&c.Storage.DBPath,
		&c.Daemon.HealthSocket,
		&c.Daemon.PIDFile,
	} {
		*p = resolvePath(baseDir, *p)
	}
}

func resolvePath(baseDir, p string) string {
	if p == "" {
		return p
	}
	p = expandHome(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return p
}
