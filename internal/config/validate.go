package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// validateConfig checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validateConfig(cfg *Config) error {
	var errs []error

	// Storage paths must be set
	for field, value := range map[string]string{
		"storage.projects_dir": cfg.Storage.ProjectsDir,
		"storage.state_dir":    cfg.Storage.StateDir,
		"storage.db_path":      cfg.Storage.DBPath,
	} {
		if value == "" {
			errs = append(errs, &ValidationError{
				Field:   field,
				Value:   value,
				Message: "must not be empty",
			})
		}
	}

	switch cfg.Engine.Runtime {
	case "auto", "docker", "podman":
	default:
		errs = append(errs, &ValidationError{
			Field:   "engine.runtime",
			Value:   cfg.Engine.Runtime,
			Message: "must be one of: auto, docker, podman",
		})
	}

	if cfg.Engine.Workers < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.workers",
			Value:   cfg.Engine.Workers,
			Message: "must be at least 1",
		})
	}

	if cfg.Engine.OnFailureRetries < 0 {
		errs = append(errs, &ValidationError{
			Field:   "engine.on_failure_retries",
			Value:   cfg.Engine.OnFailureRetries,
			Message: "must be non-negative",
		})
	}

	if cfg.Engine.ContainerPrefix == "" {
		errs = append(errs, &ValidationError{
			Field:   "engine.container_prefix",
			Value:   cfg.Engine.ContainerPrefix,
			Message: "must not be empty",
		})
	}

	if cfg.Engine.PortDiscoveryAttempts < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.port_discovery_attempts",
			Value:   cfg.Engine.PortDiscoveryAttempts,
			Message: "must be at least 1",
		})
	}

	errs = appendDurationError(errs, "engine.operation_timeout", cfg.Engine.OperationTimeout)
	errs = appendDurationError(errs, "engine.port_discovery_interval", cfg.Engine.PortDiscoveryInterval)
	errs = appendDurationError(errs, "monitor.interval", cfg.Monitor.Interval)

	if cfg.Network.Name == "" {
		errs = append(errs, &ValidationError{
			Field:   "network.name",
			Value:   cfg.Network.Name,
			Message: "must not be empty",
		})
	}

	switch cfg.Routing.Mode {
	case RoutingHostPort:
		if cfg.Routing.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   "routing.host",
				Value:   cfg.Routing.Host,
				Message: "must be set in hostport mode",
			})
		}
	case RoutingSubdomain:
		if cfg.Routing.Domain == "" {
			errs = append(errs, &ValidationError{
				Field:   "routing.domain",
				Value:   cfg.Routing.Domain,
				Message: "must be set in subdomain mode",
			})
		}
	default:
		errs = append(errs, &ValidationError{
			Field:   "routing.mode",
			Value:   cfg.Routing.Mode,
			Message: "must be one of: hostport, subdomain",
		})
	}

	if cfg.Routing.Scheme != "http" && cfg.Routing.Scheme != "https" {
		errs = append(errs, &ValidationError{
			Field:   "routing.scheme",
			Value:   cfg.Routing.Scheme,
			Message: "must be http or https",
		})
	}

	if cfg.Monitor.RestartRate <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "monitor.restart_rate",
			Value:   cfg.Monitor.RestartRate,
			Message: "must be positive",
		})
	}

	if cfg.Daemon.APIAddr == "" {
		errs = append(errs, &ValidationError{
			Field:   "daemon.api_addr",
			Value:   cfg.Daemon.APIAddr,
			Message: "must not be empty",
		})
	}

	if cfg.DNS.Enabled {
		if cfg.Routing.Mode != RoutingSubdomain {
			errs = append(errs, &ValidationError{
				Field:   "dns.enabled",
				Value:   cfg.DNS.Enabled,
				Message: "requires routing.mode subdomain",
			})
		}
		if cfg.DNS.APIToken == "" || cfg.DNS.ZoneID == "" || cfg.DNS.Target == "" {
			errs = append(errs, &ValidationError{
				Field:   "dns",
				Value:   cfg.DNS.ZoneID,
				Message: "api_token, zone_id and target are required when enabled",
			})
		}
	}

	// LogLevel must be one of: debug, info, warn, error (case-sensitive)
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Value:   cfg.LogLevel,
			Message: "must be one of: debug, info, warn, error",
		})
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, &ValidationError{
			Field:   "log_format",
			Value:   cfg.LogFormat,
			Message: "must be json or console",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// appendDurationError appends a ValidationError when value is not a positive
// Go duration string.
func appendDurationError(errs []error, field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, &ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, &ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be positive",
		})
	}
	return errs
}
