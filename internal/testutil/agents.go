// Package testutil provides small builders for agents and specs used across
// the package test suites.
package testutil

import (
	"context"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// StubAgent returns after Delay with the configured result or error.
type StubAgent struct {
	Delay  time.Duration
	Result *core.Result
	Err    error
}

// Execute implements core.Agent.
func (a *StubAgent) Execute(ctx context.Context, _ map[string]any) (*core.Result, error) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}
	if a.Result != nil {
		return a.Result, nil
	}
	return &core.Result{Status: core.StatusCompleted}, nil
}

// BlockingAgent blocks until its context is cancelled, then reports the
// context error. Used to exercise timeouts and soft cancellation.
type BlockingAgent struct {
	Started chan struct{} // closed when Execute begins, may be nil
}

// Execute implements core.Agent.
func (a *BlockingAgent) Execute(ctx context.Context, _ map[string]any) (*core.Result, error) {
	if a.Started != nil {
		close(a.Started)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// Spec builds a valid agent spec around the given handler.
func Spec(id string, handler core.Agent) *core.AgentSpec {
	return &core.AgentSpec{
		ID:           id,
		Name:         "agent " + id,
		Type:         "analysis",
		Version:      "1.0.0",
		Capabilities: []string{"analyze"},
		Handler:      handler,
	}
}
