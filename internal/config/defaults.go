package config

const (
	DefaultProjectsDir           = "projects"
	DefaultStateDir              = "state"
	DefaultDBPath                = "shipyard.db"
	DefaultRuntime               = "auto"
	DefaultWorkers               = 10
	DefaultOperationTimeout      = "30s"
	DefaultOnFailureRetries      = 3
	DefaultContainerPrefix       = "project-"
	DefaultPortDiscoveryAttempts = 5
	DefaultPortDiscoveryInterval = "500ms"
	DefaultNetworkName           = "app-network"
	DefaultRoutingScheme         = "http"
	DefaultRoutingHost           = "localhost"
	DefaultMonitorInterval       = "1m"
	DefaultMonitorRestartRate    = 2.0
	DefaultAPIAddr               = "127.0.0.1:8420"
	DefaultHealthSocket          = "daemon.sock"
	DefaultPIDFile               = "daemon.pid"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "console"
)

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			ProjectsDir: DefaultProjectsDir,
			StateDir:    DefaultStateDir,
			DBPath:      DefaultDBPath,
		},
		Engine: EngineConfig{
			Runtime:               DefaultRuntime,
			Workers:               DefaultWorkers,
			OperationTimeout:      DefaultOperationTimeout,
			OnFailureRetries:      DefaultOnFailureRetries,
			ContainerPrefix:       DefaultContainerPrefix,
			PortDiscoveryAttempts: DefaultPortDiscoveryAttempts,
			PortDiscoveryInterval: DefaultPortDiscoveryInterval,
		},
		Network: NetworkConfig{
			Name: DefaultNetworkName,
		},
		Routing: RoutingConfig{
			Mode:   RoutingHostPort,
			Scheme: DefaultRoutingScheme,
			Host:   DefaultRoutingHost,
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Interval:    DefaultMonitorInterval,
			RestartRate: DefaultMonitorRestartRate,
		},
		Daemon: DaemonConfig{
			APIAddr:      DefaultAPIAddr,
			HealthSocket: DefaultHealthSocket,
			PIDFile:      DefaultPIDFile,
		},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}
