package core

import (
	"fmt"
	"time"
)

// ValidationError reports a malformed agent spec at registration time.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid agent: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown agent or environment id.
type NotFoundError struct {
	Kind string // "agent" or "environment"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InactiveAgentError reports an execution request against a deactivated agent.
type InactiveAgentError struct {
	AgentID string
}

// Error implements the error interface.
func (e *InactiveAgentError) Error() string {
	return fmt.Sprintf("agent %s is not active", e.AgentID)
}

// ConcurrencyLimitError reports that the global execution ceiling is already
// reached. Requests hitting the ceiling are rejected immediately, never queued.
type ConcurrencyLimitError struct {
	Limit int
}

// Error implements the error interface.
func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("maximum concurrent executions reached (%d)", e.Limit)
}

// TimeoutError reports an execution that exceeded its time budget.
type TimeoutError struct {
	ExecutionID string
	Timeout     time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution %s timed out after %s", e.ExecutionID, e.Timeout)
}

// ExecutionError wraps a failure raised by the agent's own call, including a
// panic recovered from the handler or a cancellation of the execution context.
type ExecutionError struct {
	ExecutionID string
	AgentID     string
	Err         error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s of agent %s failed: %v", e.ExecutionID, e.AgentID, e.Err)
}

// Unwrap exposes the underlying cause so callers can match the agent's
// original error with errors.Is / errors.As.
func (e *ExecutionError) Unwrap() error { return e.Err }
