// Package scheduler accepts execution requests, enforces that the target
// agent exists and is active, dispatches through the queue and applies the
// execution timeout. Outcomes feed the performance tracker and are published
// as agent-scoped events; exactly one terminal event fires per attempt.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/metrics"
	"github.com/hupe1980/agentrun/queue"
	"github.com/hupe1980/agentrun/registry"
)

// DefaultPriority is assigned to executions that do not request an explicit
// priority. Higher values are served first.
const DefaultPriority = 5

// Options holds configuration overrides passed to New().
type Options struct {
	// Timeout bounds each execution attempt.
	Timeout time.Duration
	// Logger receives per-execution logs.
	Logger logging.Logger
}

// ExecuteOptions tunes a single Execute call.
type ExecuteOptions struct {
	// Priority orders the item within the pending partition.
	Priority int
}

// Scheduler composes registry, queue and tracker into the execution path.
type Scheduler struct {
	registry *registry.Registry
	queue    *queue.Queue
	tracker  *metrics.Tracker
	bus      *core.Bus
	timeout  time.Duration
	logger   logging.Logger
}

// New constructs a scheduler.
func New(reg *registry.Registry, q *queue.Queue, tracker *metrics.Tracker, bus *core.Bus, optFns ...func(o *Options)) *Scheduler {
	opts := Options{Timeout: 30 * time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{
		registry: reg,
		queue:    q,
		tracker:  tracker,
		bus:      bus,
		timeout:  opts.Timeout,
		logger:   logging.OrNop(opts.Logger),
	}
}

// Execute runs the agent's call under the configured timeout.
//
// The request is rejected with NotFoundError for unknown agents and
// InactiveAgentError for deactivated ones. Otherwise the attempt is enqueued,
// moved to running, and the call is raced against the timeout:
//
//   - success moves the item to completed, records a success in the tracker
//     and publishes execution:completed
//   - a timeout or agent failure moves the item to failed, records a failure
//     and publishes execution:failed; the error is returned to the caller
//
// There is no automatic retry at this layer.
func (s *Scheduler) Execute(ctx context.Context, agentID string, input map[string]any, optFns ...func(o *ExecuteOptions)) (*core.Result, error) {
	execOpts := ExecuteOptions{Priority: DefaultPriority}
	for _, fn := range optFns {
		fn(&execOpts)
	}

	spec, ok := s.registry.Get(agentID)
	if !ok {
		return nil, &core.NotFoundError{Kind: "agent", ID: agentID}
	}
	if !spec.Active {
		return nil, &core.InactiveAgentError{AgentID: agentID}
	}

	item := s.queue.Enqueue(agentID, execOpts.Priority, input)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.queue.Start(item.ID, cancel) {
		// Dropped from pending between enqueue and dispatch (shutdown).
		return nil, &core.ExecutionError{ExecutionID: item.ID, AgentID: agentID, Err: context.Canceled}
	}

	s.logger.Debug("execution started", "execution_id", item.ID, "agent_id", agentID, "priority", item.Priority)

	res, elapsed, err := core.Invoke(execCtx, item.ID, agentID, spec.Handler, input, s.timeout)
	if err != nil {
		s.queue.Fail(item.ID, err)
		s.tracker.Record(agentID, elapsed, false)
		s.logger.Warn("execution failed", "execution_id", item.ID, "agent_id", agentID, "error", err)
		s.bus.Publish(core.EventExecutionFailed, map[string]any{
			"executionId": item.ID,
			"agentId":     agentID,
			"error":       err.Error(),
		})
		return nil, err
	}

	s.queue.Complete(item.ID)
	s.tracker.Record(agentID, elapsed, true)
	s.logger.Debug("execution completed", "execution_id", item.ID, "agent_id", agentID, "duration", elapsed)
	s.bus.Publish(core.EventExecutionCompleted, map[string]any{
		"executionId": item.ID,
		"agentId":     agentID,
		"duration":    elapsed,
	})
	return res, nil
}

// IsTimeout reports whether the error is the scheduler's timeout rejection.
func IsTimeout(err error) bool {
	var te *core.TimeoutError
	return errors.As(err, &te)
}
