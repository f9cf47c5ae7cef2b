// Package registry holds the set of known agents, validates them on
// registration and serves lookups and filtered snapshots. It owns agent
// identity only; derived health and performance state live with their
// respective monitors and are wired together by the façade.
package registry

import (
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
)

// Filter selects agents in List. Zero-valued fields are ignored; Capabilities
// requires the agent to carry every listed capability.
type Filter struct {
	Type         string
	Active       *bool
	Capabilities []string
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Logger receives registration lifecycle logs.
	Logger logging.Logger
}

// Registry is a volatile agent store backed by a process local map. It is safe
// for concurrent access. Returned specs are clones so callers cannot mutate
// internal state.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*core.AgentSpec
	bus    *core.Bus
	logger logging.Logger
}

// New constructs an empty registry publishing on the given bus.
func New(bus *core.Bus, optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		agents: make(map[string]*core.AgentSpec),
		bus:    bus,
		logger: logging.OrNop(opts.Logger),
	}
}

// Register validates and stores an agent spec. The spec's Active flag is
// forced on and timestamps are set. Publishes agent:registered on success.
func (r *Registry) Register(spec *core.AgentSpec) error {
	if err := validate(spec); err != nil {
		return err
	}

	now := time.Now().UTC()
	stored := spec.Clone()
	stored.Active = true
	stored.Created = now
	stored.Updated = now

	r.mu.Lock()
	r.agents[stored.ID] = stored
	r.mu.Unlock()

	r.logger.Info("agent registered", "agent_id", stored.ID, "type", stored.Type)
	r.bus.Publish(core.EventAgentRegistered, map[string]any{
		"agentId": stored.ID,
		"type":    stored.Type,
	})
	return nil
}

// Unregister removes an agent. Publishes agent:unregistered on success.
// Cancellation of the agent's running executions and deletion of derived
// health/performance state is coordinated by the façade before this call.
func (r *Registry) Unregister(agentID string) error {
	r.mu.Lock()
	_, ok := r.agents[agentID]
	if ok {
		delete(r.agents, agentID)
	}
	r.mu.Unlock()

	if !ok {
		return &core.NotFoundError{Kind: "agent", ID: agentID}
	}

	r.logger.Info("agent unregistered", "agent_id", agentID)
	r.bus.Publish(core.EventAgentUnregistered, map[string]any{"agentId": agentID})
	return nil
}

// Get returns a clone of the agent spec, or nil and false if unknown.
func (r *Registry) Get(agentID string) (*core.AgentSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.agents[agentID]
	if !ok {
		return nil, false
	}
	return spec.Clone(), true
}

// List returns a snapshot of the registered agents matching the filter. The
// snapshot is recomputed per call; a nil filter matches everything.
func (r *Registry) List(filter *Filter) []*core.AgentSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*core.AgentSpec, 0, len(r.agents))
	for _, spec := range r.agents {
		if !matches(spec, filter) {
			continue
		}
		result = append(result, spec.Clone())
	}
	return result
}

// SetActive toggles the agent's liveness flag, updating its timestamp.
func (r *Registry) SetActive(agentID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.agents[agentID]
	if !ok {
		return &core.NotFoundError{Kind: "agent", ID: agentID}
	}
	spec.Active = active
	spec.Updated = time.Now().UTC()
	return nil
}

// Touch bumps the agent's Updated timestamp, used by restart.
func (r *Registry) Touch(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spec, ok := r.agents[agentID]; ok {
		spec.Updated = time.Now().UTC()
	}
}

func validate(spec *core.AgentSpec) error {
	if spec == nil {
		return &core.ValidationError{Field: "spec", Reason: "is required"}
	}
	if spec.ID == "" {
		return &core.ValidationError{Field: "id", Reason: "is required"}
	}
	if spec.Name == "" {
		return &core.ValidationError{Field: "name", Reason: "is required"}
	}
	if spec.Type == "" {
		return &core.ValidationError{Field: "type", Reason: "is required"}
	}
	if len(spec.Capabilities) == 0 {
		return &core.ValidationError{Field: "capabilities", Reason: "must not be empty"}
	}
	if spec.Handler == nil {
		return &core.ValidationError{Field: "handler", Reason: "must be callable"}
	}
	return nil
}

func matches(spec *core.AgentSpec, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if filter.Type != "" && spec.Type != filter.Type {
		return false
	}
	if filter.Active != nil && spec.Active != *filter.Active {
		return false
	}
	for _, capability := range filter.Capabilities {
		if !spec.HasCapability(capability) {
			return false
		}
	}
	return true
}
