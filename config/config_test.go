package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MaxConcurrentExecutions)
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, IsolationNone, cfg.IsolationLevel)
}

func TestEnvironmentTimeoutFallback(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.ExecutionTimeout, cfg.EnvironmentTimeout())

	cfg.MaxExecutionTime = time.Minute
	assert.Equal(t, time.Minute, cfg.EnvironmentTimeout())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_concurrent_executions: 3
execution_timeout_ms: 5000
health_check_interval_ms: 1000
isolation_level: container
resource_limits:
  cpu: 70
  memory: 256
metrics_retention_days: 7
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxConcurrentExecutions)
	assert.Equal(t, 5*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, IsolationContainer, cfg.IsolationLevel)
	assert.Equal(t, 70.0, cfg.ResourceLimits.CPUPercent)
	assert.Equal(t, 256.0, cfg.ResourceLimits.MemoryMB)
	// Unspecified fields keep their defaults.
	assert.Equal(t, 1024.0, cfg.ResourceLimits.DiskMB)
	assert.Equal(t, 7, cfg.MetricsRetentionDays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentExecutions = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ExecutionTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.IsolationLevel = "vm"
	assert.Error(t, cfg.Validate())
}
