package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeSuccessFillsResult(t *testing.T) {
	agent := AgentFunc(func(context.Context, map[string]any) (*Result, error) {
		return &Result{Status: StatusCompleted, Output: map[string]any{"ok": true}}, nil
	})

	res, elapsed, err := Invoke(context.Background(), "ex1", "a1", agent, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.False(t, res.Started.IsZero())
	assert.False(t, res.Ended.IsZero())
	assert.Equal(t, elapsed, res.Duration)
}

func TestInvokeNilResultDefaultsToCompleted(t *testing.T) {
	agent := AgentFunc(func(context.Context, map[string]any) (*Result, error) {
		return nil, nil
	})

	res, _, err := Invoke(context.Background(), "ex1", "a1", agent, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestInvokeTimeout(t *testing.T) {
	agent := AgentFunc(func(ctx context.Context, _ map[string]any) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, _, err := Invoke(context.Background(), "ex1", "a1", agent, nil, 30*time.Millisecond)
	var toErr *TimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, "ex1", toErr.ExecutionID)
	assert.Equal(t, 30*time.Millisecond, toErr.Timeout)
}

func TestInvokeAgentError(t *testing.T) {
	cause := errors.New("broken")
	agent := AgentFunc(func(context.Context, map[string]any) (*Result, error) {
		return nil, cause
	})

	_, _, err := Invoke(context.Background(), "ex1", "a1", agent, nil, time.Second)
	var exErr *ExecutionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "a1", exErr.AgentID)
	assert.ErrorIs(t, err, cause)
}

func TestInvokeParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	agent := AgentFunc(func(ctx context.Context, _ map[string]any) (*Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	go func() {
		<-started
		cancel()
	}()

	_, _, err := Invoke(ctx, "ex1", "a1", agent, nil, time.Second)
	var exErr *ExecutionError
	require.ErrorAs(t, err, &exErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvokePanicRecovered(t *testing.T) {
	agent := AgentFunc(func(context.Context, map[string]any) (*Result, error) {
		panic("unexpected")
	})

	_, _, err := Invoke(context.Background(), "ex1", "a1", agent, nil, time.Second)
	var exErr *ExecutionError
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, err.Error(), "unexpected")
}
