package core

import (
	"sync"
	"time"
)

// EventName identifies a lifecycle event published on the Bus.
type EventName string

const (
	// EventAgentRegistered fires after a successful registration.
	EventAgentRegistered EventName = "agent:registered"
	// EventAgentUnregistered fires after an agent and its derived state are removed.
	EventAgentUnregistered EventName = "agent:unregistered"
	// EventAgentRestarted fires after a restart resets an agent's derived state.
	EventAgentRestarted EventName = "agent:restarted"
	// EventAgentUnhealthy fires once on the healthy→unhealthy transition.
	EventAgentUnhealthy EventName = "agent:unhealthy"
	// EventExecutionCompleted fires exactly once per successful execution attempt.
	EventExecutionCompleted EventName = "execution:completed"
	// EventExecutionFailed fires exactly once per failed or timed-out attempt.
	EventExecutionFailed EventName = "execution:failed"
	// EventEnvironmentCreated fires when an execution environment is allocated.
	EventEnvironmentCreated EventName = "environment:created"
	// EventEnvironmentDestroyed fires when an environment is torn down.
	EventEnvironmentDestroyed EventName = "environment:destroyed"
	// EventResourceLimitExceeded is the soft signal for a sampled usage above
	// a configured limit. It never aborts the offending execution by itself.
	EventResourceLimitExceeded EventName = "resource:limit:exceeded"
	// EventSystemResourceStatus is the periodic system-wide utilization report.
	EventSystemResourceStatus EventName = "system:resource:status"
)

// Event is an immutable record published on the Bus. Payload keys follow the
// documented schema per event name (agentId, executionId, environmentId, ...).
type Event struct {
	ID        string         `json:"id"`
	Name      EventName      `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Bus is a typed publish/subscribe hub decoupling the scheduler and monitors
// from their consumers. Delivery is per-subscriber buffered; a subscriber that
// falls behind has events dropped rather than blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	buffer int
	closed bool
}

// NewBus constructs a Bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a new subscriber and returns its event channel together
// with an unsubscribe function. The channel is closed on unsubscribe or when
// the bus shuts down.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish fans an event out to all current subscribers. Publishing on a
// closed bus is a no-op.
func (b *Bus) Publish(name EventName, payload map[string]any) {
	ev := Event{ID: NewID(), Name: name, Timestamp: time.Now().UTC(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
