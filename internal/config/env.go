package config

import (
	"os"
	"strconv"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "SHIPYARD_PROJECTS_DIR",
		apply: func(c *Config, v string) {
			c.Storage.ProjectsDir = v
		},
	},
	{
		envVar: "SHIPYARD_STATE_DIR",
		apply: func(c *Config, v string) {
			c.Storage.StateDir = v
		},
	},
	{
		envVar: "SHIPYARD_RUNTIME",
		apply: func(c *Config, v string) {
			c.Engine.Runtime = v
		},
	},
	{
		envVar: "SHIPYARD_WORKERS",
		apply: func(c *Config, v string) {
			// Unparseable values are left for validation to reject
			if n, err := strconv.Atoi(v); err == nil {
				c.Engine.Workers = n
			} else {
				c.Engine.Workers = -1
			}
		},
	},
	{
		envVar: "SHIPYARD_NETWORK",
		apply: func(c *Config, v string) {
			c.Network.Name = v
		},
	},
	{
		envVar: "SHIPYARD_API_ADDR",
		apply: func(c *Config, v string) {
			c.Daemon.APIAddr = v
		},
	},
	{
		envVar: "SHIPYARD_JWT_SECRET",
		apply: func(c *Config, v string) {
			c.Auth.JWTSecret = v
		},
	},
	{
		envVar: "SHIPYARD_CLOUDFLARE_API_TOKEN",
		apply: func(c *Config, v string) {
			c.DNS.APIToken = v
		},
	},
	{
		envVar: "SHIPYARD_LOG_LEVEL",
		apply: func(c *Config, v string) {
			c.LogLevel = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
