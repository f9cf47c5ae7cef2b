package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Agent is the capability every pluggable worker must satisfy. The scheduler
// never inspects what an agent computes; it only runs Execute under the
// configured bounds and records the outcome.
//
// Implementations should respect context cancellation where they can. An
// execution whose budget expires (or whose agent is restarted/unregistered)
// has its context cancelled; a call that ignores cancellation keeps running in
// the background and its eventual result is discarded.
type Agent interface {
	Execute(ctx context.Context, input map[string]any) (*Result, error)
}

// AgentFunc adapts a plain function to the Agent interface.
type AgentFunc func(ctx context.Context, input map[string]any) (*Result, error)

// Execute calls the wrapped function.
func (f AgentFunc) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	return f(ctx, input)
}

// AgentSpec carries the identity and registration state of an agent. The
// Handler field is the callable the scheduler dispatches to; everything else
// is metadata the registry validates and indexes.
type AgentSpec struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Version       string         `json:"version"`
	Capabilities  []string       `json:"capabilities"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Active        bool           `json:"active"`
	Created       time.Time      `json:"created"`
	Updated       time.Time      `json:"updated"`

	Handler Agent `json:"-"`
}

// HasCapability reports whether the spec lists the given capability.
func (s *AgentSpec) HasCapability(capability string) bool {
	for _, c := range s.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the spec safe for independent mutation. The
// Handler reference is shared; it is treated as immutable after registration.
func (s *AgentSpec) Clone() *AgentSpec {
	clone := *s
	clone.Capabilities = make([]string, len(s.Capabilities))
	copy(clone.Capabilities, s.Capabilities)
	if s.Configuration != nil {
		clone.Configuration = make(map[string]any, len(s.Configuration))
		for k, v := range s.Configuration {
			clone.Configuration[k] = v
		}
	}
	return &clone
}

// NewID generates a new unique identifier for queue items, environments and events.
func NewID() string { return uuid.NewString() }
