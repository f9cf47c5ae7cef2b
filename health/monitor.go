// Package health periodically samples each registered agent's liveness and
// raises an edge-triggered unhealthy signal on the healthy→unhealthy
// transition. Records are refreshed on every tick and on restart and deleted
// on unregistration.
package health

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/registry"
)

// Status is the health state of an agent.
type Status string

const (
	// StatusHealthy is the steady state of a live agent.
	StatusHealthy Status = "healthy"
	// StatusDegraded is reserved for future threshold rules and is never
	// produced by the current liveness probe.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy marks an agent whose liveness probe failed.
	StatusUnhealthy Status = "unhealthy"
)

// Record is the per-agent health snapshot.
type Record struct {
	Status       Status        `json:"status"`
	LastCheck    time.Time     `json:"last_check"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorRate    float64       `json:"error_rate"`
	MemoryUsage  float64       `json:"memory_usage"`
	CPUUsage     float64       `json:"cpu_usage"`
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Interval is the health-check period.
	Interval time.Duration
	// ErrorRate supplies the sampled error rate per agent, typically backed
	// by the performance tracker. Nil leaves the rate at zero.
	ErrorRate func(agentID string) float64
	// Logger receives monitoring loop logs.
	Logger logging.Logger
}

// Monitor owns the health records. Safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	records  map[string]*Record
	registry *registry.Registry
	bus      *core.Bus

	interval  time.Duration
	errorRate func(agentID string) float64
	logger    logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a monitor over the given registry. Call Start to begin the
// periodic loop; CheckNow drives a single pass synchronously.
func New(reg *registry.Registry, bus *core.Bus, optFns ...func(o *Options)) *Monitor {
	opts := Options{Interval: 30 * time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Monitor{
		records:   make(map[string]*Record),
		registry:  reg,
		bus:       bus,
		interval:  opts.Interval,
		errorRate: opts.ErrorRate,
		logger:    logging.OrNop(opts.Logger),
		stop:      make(chan struct{}),
	}
}

// Track creates the healthy baseline record for a newly registered agent.
func (m *Monitor) Track(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[agentID] = &Record{Status: StatusHealthy, LastCheck: time.Now().UTC()}
}

// Remove drops the record for an unregistered agent.
func (m *Monitor) Remove(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, agentID)
}

// Get returns a copy of the agent's health record.
func (m *Monitor) Get(agentID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[agentID]
	if !ok {
		return Record{}, &core.NotFoundError{Kind: "agent", ID: agentID}
	}
	return *rec, nil
}

// Reset restores the agent's record to healthy, used by restart.
func (m *Monitor) Reset(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[agentID]
	if !ok {
		return &core.NotFoundError{Kind: "agent", ID: agentID}
	}
	rec.Status = StatusHealthy
	rec.LastCheck = time.Now().UTC()
	rec.ErrorRate = 0
	return nil
}

// Start runs the periodic check loop until Stop is called.
func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.CheckNow()
			}
		}
	}()
}

// Stop terminates the periodic loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// CheckNow performs one health-check pass over all registered agents. The
// probe samples the Active flag as liveness; the healthy→unhealthy transition
// publishes agent:unhealthy exactly once, further unhealthy ticks are silent.
func (m *Monitor) CheckNow() {
	for _, spec := range m.registry.List(nil) {
		m.checkAgent(spec)
	}
}

func (m *Monitor) checkAgent(spec *core.AgentSpec) {
	start := time.Now()
	alive := spec.Active
	elapsed := time.Since(start)

	var rate float64
	if m.errorRate != nil {
		rate = m.errorRate(spec.ID)
	}

	m.mu.Lock()
	rec, ok := m.records[spec.ID]
	if !ok {
		// Registered through a path that skipped Track; adopt it now.
		rec = &Record{Status: StatusHealthy}
		m.records[spec.ID] = rec
	}
	turnedUnhealthy := !alive && rec.Status != StatusUnhealthy

	rec.LastCheck = time.Now().UTC()
	rec.ResponseTime = elapsed
	rec.ErrorRate = rate
	rec.MemoryUsage = rand.Float64() * 100
	rec.CPUUsage = rand.Float64() * 100
	if alive {
		rec.Status = StatusHealthy
	} else {
		rec.Status = StatusUnhealthy
	}
	m.mu.Unlock()

	if turnedUnhealthy {
		m.logger.Warn("agent unhealthy", "agent_id", spec.ID)
		m.bus.Publish(core.EventAgentUnhealthy, map[string]any{"agentId": spec.ID})
	}
}
