package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Engine.Workers)
	assert.Equal(t, 30*time.Second, cfg.OperationTimeoutDuration())
	assert.Equal(t, 3, cfg.Engine.OnFailureRetries)
	assert.Equal(t, "project-", cfg.Engine.ContainerPrefix)
	assert.Equal(t, time.Minute, cfg.MonitorIntervalDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.PortDiscoveryIntervalDuration())
	assert.Equal(t, RoutingHostPort, cfg.Routing.Mode)
	assert.True(t, cfg.Monitor.Enabled)
	assert.False(t, cfg.Auth.Enabled())
	assert.False(t, cfg.DNS.Enabled)
}

func TestDefaultConfig_Validates(t *testing.T) {
	assert.NoError(t, validateConfig(DefaultConfig()))
}
