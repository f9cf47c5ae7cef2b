// Package config defines the tunable surface of the agentrun subsystem and a
// YAML loader for host processes that configure it from a file. Library users
// typically set the same values through functional options on the façade.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// IsolationLevel selects how much isolation an execution environment records
// around a single invocation. None skips the isolation context entirely;
// process and container record the matching handle placeholder where real
// sandboxing mechanisms would plug in.
type IsolationLevel string

const (
	// IsolationNone runs executions without an isolation context.
	IsolationNone IsolationLevel = "none"
	// IsolationProcess records a host-process handle per environment.
	IsolationProcess IsolationLevel = "process"
	// IsolationContainer records a generated container handle per environment.
	IsolationContainer IsolationLevel = "container"
)

// ResourceLimits are soft thresholds for sampled usage. A breach publishes a
// resource:limit:exceeded event; it does not abort the execution.
type ResourceLimits struct {
	CPUPercent float64 `yaml:"cpu"`
	MemoryMB   float64 `yaml:"memory"`
	DiskMB     float64 `yaml:"disk"`
}

// Config is the recognized option set for the subsystem.
type Config struct {
	// MaxConcurrentExecutions is the global ceiling on simultaneously active
	// environment executions. Requests past the ceiling are rejected, not queued.
	MaxConcurrentExecutions int

	// ExecutionTimeout bounds a single scheduled agent execution.
	ExecutionTimeout time.Duration

	// MaxExecutionTime bounds an execution inside an environment. Zero falls
	// back to ExecutionTimeout.
	MaxExecutionTime time.Duration

	// HealthCheckInterval is the period of the liveness sampling loop.
	HealthCheckInterval time.Duration

	// IsolationLevel selects none, process or container isolation.
	IsolationLevel IsolationLevel

	// ResourceLimits are the soft sampling thresholds.
	ResourceLimits ResourceLimits

	// MetricsRetentionDays is accepted for compatibility with host
	// configuration files. Retention and pruning are not enforced here.
	MetricsRetentionDays int
}

// fileConfig is the YAML form of Config. Durations are millisecond integers;
// pointer fields distinguish absent keys from explicit zeros so partial files
// merge over the defaults.
type fileConfig struct {
	MaxConcurrentExecutions *int            `yaml:"max_concurrent_executions"`
	ExecutionTimeoutMs      *int            `yaml:"execution_timeout_ms"`
	MaxExecutionTimeMs      *int            `yaml:"max_execution_time_ms"`
	HealthCheckIntervalMs   *int            `yaml:"health_check_interval_ms"`
	IsolationLevel          *string         `yaml:"isolation_level"`
	ResourceLimits          *ResourceLimits `yaml:"resource_limits"`
	MetricsRetentionDays    *int            `yaml:"metrics_retention_days"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		MaxConcurrentExecutions: 10,
		ExecutionTimeout:        30 * time.Second,
		HealthCheckInterval:     30 * time.Second,
		IsolationLevel:          IsolationNone,
		ResourceLimits: ResourceLimits{
			CPUPercent: 80,
			MemoryMB:   512,
			DiskMB:     1024,
		},
		MetricsRetentionDays: 30,
	}
}

// Load reads a YAML file and merges it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if fc.MaxConcurrentExecutions != nil {
		cfg.MaxConcurrentExecutions = *fc.MaxConcurrentExecutions
	}
	if fc.ExecutionTimeoutMs != nil {
		cfg.ExecutionTimeout = time.Duration(*fc.ExecutionTimeoutMs) * time.Millisecond
	}
	if fc.MaxExecutionTimeMs != nil {
		cfg.MaxExecutionTime = time.Duration(*fc.MaxExecutionTimeMs) * time.Millisecond
	}
	if fc.HealthCheckIntervalMs != nil {
		cfg.HealthCheckInterval = time.Duration(*fc.HealthCheckIntervalMs) * time.Millisecond
	}
	if fc.IsolationLevel != nil {
		cfg.IsolationLevel = IsolationLevel(*fc.IsolationLevel)
	}
	if fc.ResourceLimits != nil {
		if fc.ResourceLimits.CPUPercent > 0 {
			cfg.ResourceLimits.CPUPercent = fc.ResourceLimits.CPUPercent
		}
		if fc.ResourceLimits.MemoryMB > 0 {
			cfg.ResourceLimits.MemoryMB = fc.ResourceLimits.MemoryMB
		}
		if fc.ResourceLimits.DiskMB > 0 {
			cfg.ResourceLimits.DiskMB = fc.ResourceLimits.DiskMB
		}
	}
	if fc.MetricsRetentionDays != nil {
		cfg.MetricsRetentionDays = *fc.MetricsRetentionDays
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the subsystem cannot run with.
func (c Config) Validate() error {
	if c.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("max_concurrent_executions must be positive, got %d", c.MaxConcurrentExecutions)
	}
	if c.ExecutionTimeout <= 0 {
		return fmt.Errorf("execution_timeout must be positive, got %s", c.ExecutionTimeout)
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("health_check_interval must be positive, got %s", c.HealthCheckInterval)
	}
	switch c.IsolationLevel {
	case IsolationNone, IsolationProcess, IsolationContainer:
	default:
		return fmt.Errorf("unknown isolation_level %q", c.IsolationLevel)
	}
	return nil
}

// EnvironmentTimeout resolves the effective per-environment execution budget.
func (c Config) EnvironmentTimeout() time.Duration {
	if c.MaxExecutionTime > 0 {
		return c.MaxExecutionTime
	}
	return c.ExecutionTimeout
}
