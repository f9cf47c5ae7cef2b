// Package queue orders pending executions by priority and tracks the
// pending/running/completed/failed partitions. The pending partition is a
// binary heap ordered by descending priority with arrival order breaking ties;
// terminal partitions are bounded LRU caches so long-lived processes do not
// accumulate unbounded execution history.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/agentrun/core"
)

// DefaultRetention bounds how many terminal items each of the completed and
// failed partitions keeps.
const DefaultRetention = 1024

// Item is a single scheduled execution. An item lives in exactly one
// partition at a time and moves pending→running→{completed|failed}.
type Item struct {
	ID          string
	AgentID     string
	Priority    int
	ScheduledAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Input       map[string]any
	Err         error

	seq    uint64             // arrival order, breaks priority ties
	index  int                // heap bookkeeping
	cancel context.CancelFunc // soft-cancels the in-flight call when force-failed
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Retention bounds the completed and failed partitions.
	Retention int
}

// Queue owns the four partitions. Safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	pending   itemHeap
	running   map[string]*Item
	completed *lru.Cache[string, *Item]
	failed    *lru.Cache[string, *Item]
	seq       uint64
}

// New constructs an empty queue.
func New(optFns ...func(o *Options)) *Queue {
	opts := Options{Retention: DefaultRetention}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}

	completed, _ := lru.New[string, *Item](opts.Retention)
	failed, _ := lru.New[string, *Item](opts.Retention)

	return &Queue{
		running:   make(map[string]*Item),
		completed: completed,
		failed:    failed,
	}
}

// Enqueue appends a new pending item with a generated id.
func (q *Queue) Enqueue(agentID string, priority int, input map[string]any) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &Item{
		ID:          core.NewID(),
		AgentID:     agentID,
		Priority:    priority,
		ScheduledAt: time.Now().UTC(),
		Input:       input,
		seq:         q.seq,
	}
	q.seq++
	heap.Push(&q.pending, item)
	return item
}

// Start moves the given pending item into the running partition, recording its
// start time and the cancel handle for later soft cancellation. It returns
// false if the item is no longer pending.
func (q *Queue) Start(itemID string, cancel context.CancelFunc) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.pending {
		if item.ID != itemID {
			continue
		}
		heap.Remove(&q.pending, i)
		now := time.Now().UTC()
		item.StartedAt = &now
		item.cancel = cancel
		q.running[item.ID] = item
		return true
	}
	return false
}

// Complete moves a running item into the completed partition. Returns false
// if the item is not running (already force-failed or unknown).
func (q *Queue) Complete(itemID string) bool {
	return q.finish(itemID, nil, true)
}

// Fail moves a running item into the failed partition, recording the error.
// Returns false if the item is not running.
func (q *Queue) Fail(itemID string, err error) bool {
	return q.finish(itemID, err, false)
}

func (q *Queue) finish(itemID string, err error, success bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.running[itemID]
	if !ok {
		return false
	}
	delete(q.running, itemID)
	now := time.Now().UTC()
	item.CompletedAt = &now
	item.Err = err
	if success {
		q.completed.Add(item.ID, item)
	} else {
		q.failed.Add(item.ID, item)
	}
	return true
}

// FailAgent force-moves every running item for the agent directly to failed,
// cancelling each item's execution context. The in-flight calls are not
// awaited; a call that ignores cancellation runs on and its result is
// discarded. Returns the moved items.
func (q *Queue) FailAgent(agentID string, cause error) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var moved []*Item
	for id, item := range q.running {
		if item.AgentID != agentID {
			continue
		}
		delete(q.running, id)
		now := time.Now().UTC()
		item.CompletedAt = &now
		item.Err = cause
		q.failed.Add(item.ID, item)
		if item.cancel != nil {
			item.cancel()
		}
		moved = append(moved, item)
	}
	return moved
}

// DropPending discards all pending items without publishing anything. Used on
// shutdown; items never started produce no terminal event.
func (q *Queue) DropPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	return n
}

// Stats reports the current partition sizes.
func (q *Queue) Stats() (pending, running, completed, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.running), q.completed.Len(), q.failed.Len()
}

// Pending returns the pending items in service order (priority descending,
// arrival order within a priority). Snapshot, recomputed per call.
func (q *Queue) Pending() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	cp := make(itemHeap, len(q.pending))
	copy(cp, q.pending)
	ordered := make([]*Item, 0, len(cp))
	for cp.Len() > 0 {
		ordered = append(ordered, heap.Pop(&cp).(*Item))
	}
	return ordered
}

// itemHeap implements heap.Interface: max-priority first, earliest arrival
// breaking ties.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
