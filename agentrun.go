// Package agentrun provides a high-level façade over the agent lifecycle and
// execution scheduling subsystem: registry, health monitoring, performance
// tracking, the priority execution queue and isolated execution environments.
// Most applications interact with this package by:
//  1. Creating a Manager via New() (optionally overriding configuration,
//     logger, resource sampler and metrics registration)
//  2. Registering one or more agents
//  3. Executing agents directly (ExecuteAgent) or inside bounded execution
//     environments (CreateEnvironment / ExecuteInEnvironment)
//
// The façade wires the component packages together while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a structured logger and a
// Prometheus registerer.
package agentrun

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrun/config"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/environment"
	"github.com/hupe1980/agentrun/health"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/metrics"
	"github.com/hupe1980/agentrun/queue"
	"github.com/hupe1980/agentrun/registry"
	"github.com/hupe1980/agentrun/scheduler"
)

// Options configures the Manager instance.
type Options struct {
	// Config is the recognized configuration surface of the subsystem.
	Config config.Config

	// Logger receives structured lifecycle logs. Defaults to NoOpLogger.
	Logger logging.Logger

	// Sampler produces resource-usage snapshots during environment
	// executions. Defaults to the simulated sampler.
	Sampler environment.Sampler

	// EventBufferSize sets the per-subscriber event channel capacity.
	EventBufferSize int

	// MetricsRegisterer enables Prometheus export of execution metrics when
	// non-nil (prometheus.DefaultRegisterer is a common choice).
	MetricsRegisterer prometheus.Registerer

	// QueueRetention bounds the completed/failed execution history.
	QueueRetention int
}

// Manager is the high-level façade aggregating the subsystem components. Its
// periodic loops (health checks, system resource status) start on
// construction and run until Shutdown.
type Manager struct {
	cfg    config.Config
	logger logging.Logger

	bus          *core.Bus
	registry     *registry.Registry
	queue        *queue.Queue
	tracker      *metrics.Tracker
	collector    *metrics.Collector
	monitor      *health.Monitor
	scheduler    *scheduler.Scheduler
	environments *environment.Manager

	shutdownOnce sync.Once
}

// New creates a Manager with optional overrides.
func New(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNop(opts.Logger)

	bus := core.NewBus(opts.EventBufferSize)

	var collector *metrics.Collector
	trackerOpts := []func(o *metrics.Options){}
	if opts.MetricsRegisterer != nil {
		collector = metrics.NewCollector(opts.MetricsRegisterer)
		trackerOpts = append(trackerOpts, func(o *metrics.Options) { o.Collector = collector })
	}
	tracker := metrics.New(trackerOpts...)

	reg := registry.New(bus, func(o *registry.Options) { o.Logger = logger })

	q := queue.New(func(o *queue.Options) { o.Retention = opts.QueueRetention })

	monitor := health.New(reg, bus, func(o *health.Options) {
		o.Interval = opts.Config.HealthCheckInterval
		o.Logger = logger
		o.ErrorRate = func(agentID string) float64 {
			if s, err := tracker.Get(agentID); err == nil {
				return s.ErrorRate
			}
			return 0
		}
	})

	sched := scheduler.New(reg, q, tracker, bus, func(o *scheduler.Options) {
		o.Timeout = opts.Config.ExecutionTimeout
		o.Logger = logger
	})

	envs := environment.NewManager(bus, func(o *environment.Options) {
		o.MaxConcurrent = opts.Config.MaxConcurrentExecutions
		o.Timeout = opts.Config.EnvironmentTimeout()
		o.Isolation = opts.Config.IsolationLevel
		o.Limits = opts.Config.ResourceLimits
		if opts.Sampler != nil {
			o.Sampler = opts.Sampler
		}
		o.Logger = logger
	})

	m := &Manager{
		cfg:          opts.Config,
		logger:       logger,
		bus:          bus,
		registry:     reg,
		queue:        q,
		tracker:      tracker,
		collector:    collector,
		monitor:      monitor,
		scheduler:    sched,
		environments: envs,
	}

	m.monitor.Start()
	m.environments.Start()

	return m
}

// RegisterAgent validates and registers an agent, initializing its health
// record and performance summary.
func (m *Manager) RegisterAgent(spec *core.AgentSpec) error {
	if err := m.registry.Register(spec); err != nil {
		return err
	}
	m.monitor.Track(spec.ID)
	m.tracker.Track(spec.ID)
	return nil
}

// UnregisterAgent removes an agent and all of its derived state. Running
// executions for the agent are force-moved to the failed partition; their
// in-flight calls are cancelled but not awaited.
func (m *Manager) UnregisterAgent(agentID string) error {
	if _, ok := m.registry.Get(agentID); !ok {
		return &core.NotFoundError{Kind: "agent", ID: agentID}
	}
	m.queue.FailAgent(agentID, errors.New("agent unregistered"))
	m.monitor.Remove(agentID)
	m.tracker.Remove(agentID)
	return m.registry.Unregister(agentID)
}

// ExecuteAgent schedules and runs one execution attempt for the agent.
func (m *Manager) ExecuteAgent(ctx context.Context, agentID string, input map[string]any, optFns ...func(o *scheduler.ExecuteOptions)) (*core.Result, error) {
	return m.scheduler.Execute(ctx, agentID, input, optFns...)
}

// RestartAgent cancels the agent's running executions and resets its derived
// state: the health record returns to healthy and the performance rates to
// their pristine values. Identity and history are untouched.
func (m *Manager) RestartAgent(agentID string) error {
	if _, ok := m.registry.Get(agentID); !ok {
		return &core.NotFoundError{Kind: "agent", ID: agentID}
	}
	m.queue.FailAgent(agentID, errors.New("agent restarted"))
	if err := m.monitor.Reset(agentID); err != nil {
		return err
	}
	m.tracker.ResetRates(agentID)
	m.registry.Touch(agentID)

	m.logger.Info("agent restarted", "agent_id", agentID)
	m.bus.Publish(core.EventAgentRestarted, map[string]any{"agentId": agentID})
	return nil
}

// GetAgent returns the agent spec or false if unknown.
func (m *Manager) GetAgent(agentID string) (*core.AgentSpec, bool) {
	return m.registry.Get(agentID)
}

// ListAgents returns a snapshot of registered agents matching the filter.
func (m *Manager) ListAgents(filter *registry.Filter) []*core.AgentSpec {
	return m.registry.List(filter)
}

// SetAgentActive toggles the agent's liveness flag.
func (m *Manager) SetAgentActive(agentID string, active bool) error {
	return m.registry.SetActive(agentID, active)
}

// AgentHealth returns the agent's current health record.
func (m *Manager) AgentHealth(agentID string) (health.Record, error) {
	return m.monitor.Get(agentID)
}

// PerformanceMetrics returns the agent's performance summary.
func (m *Manager) PerformanceMetrics(agentID string) (metrics.Summary, error) {
	return m.tracker.Get(agentID)
}

// CheckHealthNow drives a single synchronous health-check pass, independent
// of the periodic loop. Intended for tests and operational probes.
func (m *Manager) CheckHealthNow() {
	m.monitor.CheckNow()
}

// CreateEnvironment allocates an isolated execution environment for the agent.
func (m *Manager) CreateEnvironment(agentID string) (*environment.Environment, error) {
	return m.environments.Create(agentID)
}

// ExecuteInEnvironment runs the environment's agent inside the environment,
// under the concurrency ceiling, the execution budget and the resource
// sampling loop.
func (m *Manager) ExecuteInEnvironment(ctx context.Context, environmentID string, input map[string]any) (*core.Result, error) {
	env, ok := m.environments.Get(environmentID)
	if !ok {
		return nil, &core.NotFoundError{Kind: "environment", ID: environmentID}
	}
	spec, ok := m.registry.Get(env.AgentID)
	if !ok {
		return nil, &core.NotFoundError{Kind: "agent", ID: env.AgentID}
	}

	if m.collector != nil {
		defer func() { m.collector.SetActiveExecutions(m.environments.ActiveExecutions()) }()
		m.collector.SetActiveExecutions(m.environments.ActiveExecutions() + 1)
	}
	return m.environments.Execute(ctx, environmentID, spec.Handler, input)
}

// DestroyEnvironment tears the environment down. Idempotent; destroying an
// unknown environment is a warning, not an error.
func (m *Manager) DestroyEnvironment(environmentID string) error {
	return m.environments.Destroy(environmentID)
}

// ListEnvironments returns environment snapshots, optionally filtered by agent.
func (m *Manager) ListEnvironments(agentID string) []*environment.Environment {
	return m.environments.List(agentID)
}

// Subscribe registers an event consumer, returning the event channel and an
// unsubscribe function.
func (m *Manager) Subscribe() (<-chan core.Event, func()) {
	return m.bus.Subscribe()
}

// Shutdown stops the periodic loops, drops still-pending queue items without
// publishing terminal events and tears down all environments best-effort in
// parallel. Safe to call more than once.
func (m *Manager) Shutdown() error {
	var err error
	m.shutdownOnce.Do(func() {
		m.monitor.Stop()
		m.environments.Stop()

		if dropped := m.queue.DropPending(); dropped > 0 {
			m.logger.Warn("dropping pending executions on shutdown", "count", dropped)
		}

		g := new(errgroup.Group)
		for _, id := range m.environments.IDs() {
			id := id
			g.Go(func() error { return m.environments.Destroy(id) })
		}
		err = g.Wait()

		m.bus.Close()
	})
	return err
}
