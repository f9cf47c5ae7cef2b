package core

import (
	"context"
	"fmt"
	"time"
)

// Invoke runs the agent's call raced against a timeout, returning the result,
// the measured wall-clock duration and a taxonomy error on failure:
//
//   - the timer firing first yields a *TimeoutError
//   - the agent returning an error (or panicking) yields a *ExecutionError
//     wrapping the original cause
//   - cancellation of the parent context yields a *ExecutionError wrapping
//     the context error
//
// The execution context handed to the agent is cancelled as soon as Invoke
// returns. An agent that ignores cancellation keeps running in the background;
// its eventual result is discarded (soft cancellation).
func Invoke(ctx context.Context, executionID, agentID string, agent Agent, input map[string]any, timeout time.Duration) (*Result, time.Duration, error) {
	type outcome struct {
		res *Result
		err error
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent panicked: %v", r)}
			}
		}()
		res, err := agent.Execute(execCtx, input)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			return nil, elapsed, &ExecutionError{ExecutionID: executionID, AgentID: agentID, Err: out.err}
		}
		res := out.res
		if res == nil {
			res = &Result{Status: StatusCompleted}
		}
		if res.Started.IsZero() {
			res.Started = start
		}
		if res.Ended.IsZero() {
			res.Ended = start.Add(elapsed)
		}
		if res.Duration == 0 {
			res.Duration = elapsed
		}
		return res, elapsed, nil

	case <-timer.C:
		return nil, time.Since(start), &TimeoutError{ExecutionID: executionID, Timeout: timeout}

	case <-ctx.Done():
		return nil, time.Since(start), &ExecutionError{ExecutionID: executionID, AgentID: agentID, Err: ctx.Err()}
	}
}
