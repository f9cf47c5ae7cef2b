// Package metrics maintains a running statistical summary per agent: execution
// count, cumulative average duration and exact success/error rates. Summaries
// feed health decisions and the scheduler's reporting surface; a Prometheus
// collector can optionally mirror every observation for scraping.
package metrics

import (
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// Summary is the per-agent performance record. SuccessRate and ErrorRate are
// exact cumulative averages, so SuccessRate+ErrorRate == 1 once Count > 0 and
// the final values are independent of arrival order for a fixed outcome set.
type Summary struct {
	Count         int64         `json:"count"`
	AvgDuration   time.Duration `json:"avg_duration"`
	SuccessRate   float64       `json:"success_rate"`
	ErrorRate     float64       `json:"error_rate"`
	LastExecution time.Time     `json:"last_execution"`
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Collector mirrors observations into Prometheus metrics when set.
	Collector *Collector
}

// Tracker owns the summaries keyed by agent id. Safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	summaries map[string]*Summary
	collector *Collector
}

// New constructs an empty tracker.
func New(optFns ...func(o *Options)) *Tracker {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Tracker{
		summaries: make(map[string]*Summary),
		collector: opts.Collector,
	}
}

// Track initializes the summary for a newly registered agent: zero executions,
// success rate 1.0, error rate 0.0.
func (t *Tracker) Track(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summaries[agentID] = &Summary{SuccessRate: 1.0}
}

// Record folds one execution attempt into the agent's summary using exact
// running averages:
//
//	avg'  = (avg*n + d) / (n+1)
//	rate' = (rate*n + hit) / (n+1)
//
// LastExecution is set unconditionally. Unknown agents are ignored; their
// state was deleted by unregistration and the late outcome is discarded.
func (t *Tracker) Record(agentID string, duration time.Duration, success bool) {
	t.mu.Lock()
	s, ok := t.summaries[agentID]
	if ok {
		n := float64(s.Count)
		s.AvgDuration = time.Duration((float64(s.AvgDuration)*n + float64(duration)) / (n + 1))
		if success {
			s.SuccessRate = (s.SuccessRate*n + 1) / (n + 1)
			s.ErrorRate = (s.ErrorRate * n) / (n + 1)
		} else {
			s.SuccessRate = (s.SuccessRate * n) / (n + 1)
			s.ErrorRate = (s.ErrorRate*n + 1) / (n + 1)
		}
		s.Count++
		s.LastExecution = time.Now().UTC()
	}
	t.mu.Unlock()

	if ok && t.collector != nil {
		t.collector.Observe(agentID, duration, success)
	}
}

// Get returns a copy of the agent's summary.
func (t *Tracker) Get(agentID string) (Summary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.summaries[agentID]
	if !ok {
		return Summary{}, &core.NotFoundError{Kind: "agent", ID: agentID}
	}
	return *s, nil
}

// Remove drops the summary for an unregistered agent.
func (t *Tracker) Remove(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.summaries, agentID)
}

// ResetRates restores the pristine success/error rates after a restart. The
// execution count and average duration are history, not derived health state,
// and survive the reset.
func (t *Tracker) ResetRates(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.summaries[agentID]; ok {
		s.SuccessRate = 1.0
		s.ErrorRate = 0.0
	}
}
