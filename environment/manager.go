// Package environment creates and destroys a bounded execution context per
// invocation, enforces the global concurrency ceiling, samples resource usage
// during execution and emits soft limit-exceeded signals. Isolation is a
// contract point: the subsystem records process/container handles and injected
// environment variables where real sandboxing mechanisms would plug in.
package environment

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentrun/config"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
)

// IsolationContext records the isolation arrangement of one environment.
type IsolationContext struct {
	Level         config.IsolationLevel `json:"level"`
	Env           map[string]string     `json:"env"`
	ProcessHandle string                `json:"process_handle,omitempty"`
	ContainerID   string                `json:"container_id,omitempty"`
}

// Environment is one isolated execution context. Exactly one invocation owns
// it: created before, destroyed after.
type Environment struct {
	ID        string            `json:"id"`
	AgentID   string            `json:"agent_id"`
	Status    core.Status       `json:"status"`
	Started   time.Time         `json:"started,omitzero"`
	Ended     time.Time         `json:"ended,omitzero"`
	Usage     ResourceUsage     `json:"usage"`
	Isolation *IsolationContext `json:"isolation,omitempty"`

	cancel     context.CancelFunc
	sampleStop chan struct{}
}

func (e *Environment) snapshot() *Environment {
	cp := *e
	cp.cancel = nil
	cp.sampleStop = nil
	if e.Isolation != nil {
		iso := *e.Isolation
		iso.Env = make(map[string]string, len(e.Isolation.Env))
		for k, v := range e.Isolation.Env {
			iso.Env[k] = v
		}
		cp.Isolation = &iso
	}
	return &cp
}

// Options holds configuration overrides passed to NewManager().
type Options struct {
	// MaxConcurrent is the global ceiling on active executions.
	MaxConcurrent int
	// Timeout bounds each execution inside an environment.
	Timeout time.Duration
	// Isolation selects the isolation level for new environments.
	Isolation config.IsolationLevel
	// Limits are the soft thresholds the sampling loop checks.
	Limits config.ResourceLimits
	// Sampler produces the usage snapshots. Defaults to SimulatedSampler.
	Sampler Sampler
	// SampleInterval is the resource sampling period.
	SampleInterval time.Duration
	// StatusInterval is the system-wide status reporting period.
	StatusInterval time.Duration
	// Logger receives environment lifecycle logs.
	Logger logging.Logger
}

// Manager owns the environment table and the concurrency ceiling.
type Manager struct {
	mu     sync.RWMutex
	envs   map[string]*Environment
	active int

	sem           *semaphore.Weighted
	maxConcurrent int
	timeout       time.Duration
	isolation     config.IsolationLevel
	limits        config.ResourceLimits
	sampler       Sampler
	sampleEvery   time.Duration
	statusEvery   time.Duration

	bus    *core.Bus
	logger logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager constructs a manager. Call Start to begin the periodic status
// loop; Stop (or the façade's shutdown) terminates it.
func NewManager(bus *core.Bus, optFns ...func(o *Options)) *Manager {
	opts := Options{
		MaxConcurrent:  10,
		Timeout:        30 * time.Second,
		Isolation:      config.IsolationNone,
		Sampler:        NewSimulatedSampler(),
		SampleInterval: time.Second,
		StatusInterval: 5 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Isolation == "" {
		opts.Isolation = config.IsolationNone
	}
	if opts.Sampler == nil {
		opts.Sampler = NewSimulatedSampler()
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 5 * time.Second
	}
	return &Manager{
		envs:          make(map[string]*Environment),
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		maxConcurrent: opts.MaxConcurrent,
		timeout:       opts.Timeout,
		isolation:     opts.Isolation,
		limits:        opts.Limits,
		sampler:       opts.Sampler,
		sampleEvery:   opts.SampleInterval,
		statusEvery:   opts.StatusInterval,
		bus:           bus,
		logger:        logging.OrNop(opts.Logger),
		stop:          make(chan struct{}),
	}
}

// Create allocates a new environment for the agent with a zeroed usage
// snapshot. Unless the isolation level is none, an isolation context is built
// with identifying environment variables and the level's handle placeholder.
// Publishes environment:created.
func (m *Manager) Create(agentID string) (*Environment, error) {
	env := &Environment{
		ID:      core.NewID(),
		AgentID: agentID,
		Status:  core.StatusPending,
	}

	if m.isolation != config.IsolationNone {
		iso := &IsolationContext{
			Level: m.isolation,
			Env: map[string]string{
				"AGENTRUN_ENVIRONMENT_ID": env.ID,
				"AGENTRUN_ISOLATION":      string(m.isolation),
			},
		}
		switch m.isolation {
		case config.IsolationProcess:
			iso.ProcessHandle = fmt.Sprintf("pid:%d", os.Getpid())
		case config.IsolationContainer:
			iso.ContainerID = "container-" + env.ID[:8]
		}
		env.Isolation = iso
	}

	m.mu.Lock()
	m.envs[env.ID] = env
	m.mu.Unlock()

	m.logger.Debug("environment created", "environment_id", env.ID, "agent_id", agentID, "isolation", m.isolation)
	m.bus.Publish(core.EventEnvironmentCreated, map[string]any{
		"environmentId": env.ID,
		"agentId":       agentID,
	})
	return env.snapshot(), nil
}

// Execute runs the agent call inside the environment, raced against the
// execution budget, with the resource sampling loop active for the duration.
//
// Unknown environments fail with NotFoundError. If the number of active
// executions has already reached the ceiling the request fails immediately
// with ConcurrencyLimitError; there is no queueing at this layer.
func (m *Manager) Execute(ctx context.Context, environmentID string, agent core.Agent, input map[string]any) (*core.Result, error) {
	m.mu.RLock()
	_, known := m.envs[environmentID]
	m.mu.RUnlock()
	if !known {
		return nil, &core.NotFoundError{Kind: "environment", ID: environmentID}
	}

	if !m.sem.TryAcquire(1) {
		return nil, &core.ConcurrencyLimitError{Limit: m.maxConcurrent}
	}
	defer m.sem.Release(1)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	env, ok := m.envs[environmentID]
	if !ok {
		m.mu.Unlock()
		// Destroyed between the lookup and dispatch.
		return nil, &core.NotFoundError{Kind: "environment", ID: environmentID}
	}
	env.Status = core.StatusRunning
	env.Started = time.Now().UTC()
	env.cancel = cancel
	env.sampleStop = make(chan struct{})
	agentID := env.AgentID
	sampleStop := env.sampleStop
	m.active++
	m.mu.Unlock()

	go m.sampleLoop(environmentID, sampleStop)

	executionID := core.NewID()
	res, elapsed, err := core.Invoke(execCtx, executionID, agentID, agent, input, m.timeout)

	m.mu.Lock()
	m.active--
	close(sampleStop)
	if current, still := m.envs[environmentID]; still && current == env {
		if err != nil {
			current.Status = core.StatusFailed
		} else {
			current.Status = core.StatusCompleted
		}
		current.Ended = time.Now().UTC()
		current.cancel = nil
		current.sampleStop = nil
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("environment execution failed", "environment_id", environmentID, "agent_id", agentID, "error", err)
		m.bus.Publish(core.EventExecutionFailed, map[string]any{
			"executionId":   executionID,
			"environmentId": environmentID,
			"agentId":       agentID,
			"error":         err.Error(),
		})
		return nil, err
	}

	m.logger.Debug("environment execution completed", "environment_id", environmentID, "agent_id", agentID, "duration", elapsed)
	m.bus.Publish(core.EventExecutionCompleted, map[string]any{
		"executionId":   executionID,
		"environmentId": environmentID,
		"agentId":       agentID,
		"duration":      elapsed,
	})
	return res, nil
}

// Destroy tears the environment down: any still-active execution handle is
// dropped without waiting for the call, the isolation context is released and
// the environment removed. Destroying an unknown environment is a no-op with
// a warning, not an error, so repeated teardown is safe.
func (m *Manager) Destroy(environmentID string) error {
	m.mu.Lock()
	env, ok := m.envs[environmentID]
	var cancel context.CancelFunc
	if ok {
		delete(m.envs, environmentID)
		cancel = env.cancel
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("destroy of unknown environment", "environment_id", environmentID)
		return nil
	}

	if cancel != nil {
		cancel()
	}
	if env.Isolation != nil {
		// Real process/container cleanup hooks in here.
		m.logger.Debug("isolation context released", "environment_id", environmentID, "level", env.Isolation.Level)
	}

	m.logger.Debug("environment destroyed", "environment_id", environmentID)
	m.bus.Publish(core.EventEnvironmentDestroyed, map[string]any{"environmentId": environmentID})
	return nil
}

// Get returns a snapshot of the environment.
func (m *Manager) Get(environmentID string) (*Environment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.envs[environmentID]
	if !ok {
		return nil, false
	}
	return env.snapshot(), true
}

// List returns snapshots of all environments, or only those belonging to the
// agent when agentID is non-empty.
func (m *Manager) List(agentID string) []*Environment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Environment, 0, len(m.envs))
	for _, env := range m.envs {
		if agentID != "" && env.AgentID != agentID {
			continue
		}
		result = append(result, env.snapshot())
	}
	return result
}

// IDs returns the ids of all tracked environments.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.envs))
	for id := range m.envs {
		ids = append(ids, id)
	}
	return ids
}

// ActiveExecutions reports the number of currently active executions.
func (m *Manager) ActiveExecutions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Start begins the periodic system:resource:status loop.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(m.statusEvery)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.publishStatus()
			}
		}
	}()
}

// Stop terminates the status loop. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) publishStatus() {
	m.mu.RLock()
	active := m.active
	total := len(m.envs)
	m.mu.RUnlock()

	m.bus.Publish(core.EventSystemResourceStatus, map[string]any{
		"activeExecutions":  active,
		"totalEnvironments": total,
		"maxConcurrent":     m.maxConcurrent,
	})
}

// sampleLoop refreshes the environment's usage snapshot on a fixed period and
// raises the soft limit-exceeded signal for each breached resource. It never
// aborts the execution it observes.
func (m *Manager) sampleLoop(environmentID string, stop <-chan struct{}) {
	ticker := time.NewTicker(m.sampleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.SampleOnce(environmentID)
		}
	}
}

// SampleOnce takes a single usage sample for the environment, storing it and
// publishing resource:limit:exceeded for every breached soft limit. Exposed
// so tests and callers can drive sampling deterministically.
func (m *Manager) SampleOnce(environmentID string) {
	usage := m.sampler.Sample()

	m.mu.Lock()
	env, ok := m.envs[environmentID]
	if ok {
		env.Usage = usage
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if m.limits.CPUPercent > 0 && usage.CPUPercent > m.limits.CPUPercent {
		m.publishLimitExceeded(environmentID, "cpu", usage.CPUPercent, m.limits.CPUPercent)
	}
	if m.limits.MemoryMB > 0 && usage.MemoryMB > m.limits.MemoryMB {
		m.publishLimitExceeded(environmentID, "memory", usage.MemoryMB, m.limits.MemoryMB)
	}
}

func (m *Manager) publishLimitExceeded(environmentID, resource string, usage, limit float64) {
	m.logger.Warn("resource limit exceeded", "environment_id", environmentID, "resource", resource, "usage", usage, "limit", limit)
	m.bus.Publish(core.EventResourceLimitExceeded, map[string]any{
		"environmentId": environmentID,
		"resource":      resource,
		"usage":         usage,
		"limit":         limit,
	})
}
