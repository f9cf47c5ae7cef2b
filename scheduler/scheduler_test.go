package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/hupe1980/agentrun/metrics"
	"github.com/hupe1980/agentrun/queue"
	"github.com/hupe1980/agentrun/registry"
)

type fixture struct {
	scheduler *Scheduler
	registry  *registry.Registry
	tracker   *metrics.Tracker
	queue     *queue.Queue
	events    <-chan core.Event
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	bus := core.NewBus(32)
	reg := registry.New(bus)
	tracker := metrics.New()
	q := queue.New()

	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	return &fixture{
		scheduler: New(reg, q, tracker, bus, optFns...),
		registry:  reg,
		tracker:   tracker,
		queue:     q,
		events:    events,
	}
}

func (f *fixture) register(t *testing.T, id string, handler core.Agent) {
	t.Helper()
	require.NoError(t, f.registry.Register(testutil.Spec(id, handler)))
	f.tracker.Track(id)
}

func (f *fixture) waitFor(t *testing.T, name core.EventName) core.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-f.events:
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", name)
		}
	}
}

func TestExecuteUnknownAgent(t *testing.T) {
	f := newFixture(t)

	_, err := f.scheduler.Execute(context.Background(), "ghost", nil)
	var nfErr *core.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "ghost", nfErr.ID)
}

func TestExecuteInactiveAgent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", &testutil.StubAgent{})
	require.NoError(t, f.registry.SetActive("a1", false))

	_, err := f.scheduler.Execute(context.Background(), "a1", nil)
	var inErr *core.InactiveAgentError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, "a1", inErr.AgentID)
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", &testutil.StubAgent{
		Result: &core.Result{Status: core.StatusCompleted, Output: map[string]any{"ok": true}},
	})

	res, err := f.scheduler.Execute(context.Background(), "a1", map[string]any{"in": 1})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, map[string]any{"ok": true}, res.Output)
	assert.False(t, res.Started.IsZero())

	s, err := f.tracker.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Count)
	assert.Equal(t, 1.0, s.SuccessRate)

	ev := f.waitFor(t, core.EventExecutionCompleted)
	assert.Equal(t, "a1", ev.Payload["agentId"])
	assert.NotEmpty(t, ev.Payload["executionId"])

	_, _, completed, _ := f.queue.Stats()
	assert.Equal(t, 1, completed)
}

func TestExecuteTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Timeout = 50 * time.Millisecond })
	f.register(t, "a1", &testutil.BlockingAgent{})

	_, err := f.scheduler.Execute(context.Background(), "a1", nil)
	var toErr *core.TimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, 50*time.Millisecond, toErr.Timeout)
	assert.True(t, IsTimeout(err))
	// The message names the execution and the configured budget.
	assert.True(t, strings.Contains(err.Error(), toErr.ExecutionID))
	assert.True(t, strings.Contains(err.Error(), "50ms"))

	s, _ := f.tracker.Get("a1")
	assert.Equal(t, int64(1), s.Count)
	assert.Equal(t, 1.0, s.ErrorRate)

	ev := f.waitFor(t, core.EventExecutionFailed)
	assert.Equal(t, "a1", ev.Payload["agentId"])

	_, _, _, failed := f.queue.Stats()
	assert.Equal(t, 1, failed)
}

func TestExecuteAgentError(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("boom")
	f.register(t, "a1", &testutil.StubAgent{Err: cause})

	_, err := f.scheduler.Execute(context.Background(), "a1", nil)
	var exErr *core.ExecutionError
	require.ErrorAs(t, err, &exErr)
	// The agent's original error is preserved through the wrap.
	assert.ErrorIs(t, err, cause)

	s, _ := f.tracker.Get("a1")
	assert.Equal(t, 1.0, s.ErrorRate)
	f.waitFor(t, core.EventExecutionFailed)
}

func TestExecutePanicRecovered(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", core.AgentFunc(func(context.Context, map[string]any) (*core.Result, error) {
		panic("kaboom")
	}))

	_, err := f.scheduler.Execute(context.Background(), "a1", nil)
	var exErr *core.ExecutionError
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestExecuteExactlyOneTerminalEvent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", &testutil.StubAgent{})

	_, err := f.scheduler.Execute(context.Background(), "a1", nil)
	require.NoError(t, err)

	var terminal int
	deadline := time.After(200 * time.Millisecond)
	for done := false; !done; {
		select {
		case ev := <-f.events:
			if ev.Name == core.EventExecutionCompleted || ev.Name == core.EventExecutionFailed {
				terminal++
			}
		case <-deadline:
			done = true
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestMixedOutcomesMatchClosedForm(t *testing.T) {
	f := newFixture(t)

	ok := &testutil.StubAgent{}
	fail := &testutil.StubAgent{Err: errors.New("nope")}
	outcomes := []core.Agent{ok, fail, ok, ok, fail, ok}

	handler := &switchAgent{agents: outcomes}
	f.register(t, "a1", handler)

	for range outcomes {
		_, _ = f.scheduler.Execute(context.Background(), "a1", nil)
	}

	s, err := f.tracker.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(outcomes)), s.Count)
	assert.InDelta(t, 4.0/6.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0/6.0, s.ErrorRate, 1e-9)
	assert.InDelta(t, 1.0, s.SuccessRate+s.ErrorRate, 1e-9)
}

// switchAgent delegates each successive call to the next agent in the list.
type switchAgent struct {
	agents []core.Agent
	calls  int
}

func (s *switchAgent) Execute(ctx context.Context, input map[string]any) (*core.Result, error) {
	agent := s.agents[s.calls%len(s.agents)]
	s.calls++
	return agent.Execute(ctx, input)
}
