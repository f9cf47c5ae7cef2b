package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/testutil"
	"github.com/hupe1980/agentrun/registry"
)

func newFixture(t *testing.T) (*Monitor, *registry.Registry, <-chan core.Event) {
	t.Helper()
	bus := core.NewBus(32)
	reg := registry.New(bus)
	monitor := New(reg, bus)

	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)
	return monitor, reg, events
}

func drainUntil(events <-chan core.Event, name core.EventName) *core.Event {
	for {
		select {
		case ev := <-events:
			if ev.Name == name {
				return &ev
			}
		case <-time.After(200 * time.Millisecond):
			return nil
		}
	}
}

func TestTrackAndGet(t *testing.T) {
	monitor, _, _ := newFixture(t)
	monitor.Track("a1")

	rec, err := monitor.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, rec.Status)
	assert.False(t, rec.LastCheck.IsZero())
}

func TestGetUnknown(t *testing.T) {
	monitor, _, _ := newFixture(t)
	_, err := monitor.Get("nope")
	var nfErr *core.NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestUnhealthyEdgeTriggered(t *testing.T) {
	monitor, reg, events := newFixture(t)

	require.NoError(t, reg.Register(testutil.Spec("a1", &testutil.StubAgent{})))
	monitor.Track("a1")
	require.NoError(t, reg.SetActive("a1", false))

	monitor.CheckNow()
	ev := drainUntil(events, core.EventAgentUnhealthy)
	require.NotNil(t, ev)
	assert.Equal(t, "a1", ev.Payload["agentId"])

	rec, _ := monitor.Get("a1")
	assert.Equal(t, StatusUnhealthy, rec.Status)

	// A second tick without a status change must not fire again.
	monitor.CheckNow()
	assert.Nil(t, drainUntil(events, core.EventAgentUnhealthy))
}

func TestRecoveryThenRelapseFiresAgain(t *testing.T) {
	monitor, reg, events := newFixture(t)

	require.NoError(t, reg.Register(testutil.Spec("a1", &testutil.StubAgent{})))
	monitor.Track("a1")

	require.NoError(t, reg.SetActive("a1", false))
	monitor.CheckNow()
	require.NotNil(t, drainUntil(events, core.EventAgentUnhealthy))

	require.NoError(t, reg.SetActive("a1", true))
	monitor.CheckNow()
	rec, _ := monitor.Get("a1")
	assert.Equal(t, StatusHealthy, rec.Status)

	require.NoError(t, reg.SetActive("a1", false))
	monitor.CheckNow()
	assert.NotNil(t, drainUntil(events, core.EventAgentUnhealthy))
}

func TestReset(t *testing.T) {
	monitor, reg, _ := newFixture(t)

	require.NoError(t, reg.Register(testutil.Spec("a1", &testutil.StubAgent{})))
	monitor.Track("a1")
	require.NoError(t, reg.SetActive("a1", false))
	monitor.CheckNow()

	require.NoError(t, monitor.Reset("a1"))
	rec, _ := monitor.Get("a1")
	assert.Equal(t, StatusHealthy, rec.Status)
	assert.Equal(t, 0.0, rec.ErrorRate)

	var nfErr *core.NotFoundError
	assert.ErrorAs(t, monitor.Reset("nope"), &nfErr)
}

func TestRemove(t *testing.T) {
	monitor, _, _ := newFixture(t)
	monitor.Track("a1")
	monitor.Remove("a1")

	_, err := monitor.Get("a1")
	var nfErr *core.NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestPeriodicLoop(t *testing.T) {
	bus := core.NewBus(32)
	reg := registry.New(bus)
	monitor := New(reg, bus, func(o *Options) { o.Interval = 10 * time.Millisecond })

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	require.NoError(t, reg.Register(testutil.Spec("a1", &testutil.StubAgent{})))
	monitor.Track("a1")
	require.NoError(t, reg.SetActive("a1", false))

	monitor.Start()
	defer monitor.Stop()

	assert.NotNil(t, drainUntil(events, core.EventAgentUnhealthy))
}
