package core

import "time"

// Status is the lifecycle state shared by queue items, environments and results.
type Status string

const (
	// StatusPending marks work accepted but not yet dispatched.
	StatusPending Status = "pending"
	// StatusRunning marks work currently executing.
	StatusRunning Status = "running"
	// StatusCompleted marks work that finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed marks work that ended in an error or timeout.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Result is the outcome an agent returns from Execute. Duration and the
// start/end timestamps are filled in by the invoking layer when the agent
// leaves them zero, so simple agents only need to populate Status and Output.
type Result struct {
	Status   Status         `json:"status"`
	Output   map[string]any `json:"output,omitempty"`
	Duration time.Duration  `json:"duration"`
	Started  time.Time      `json:"started"`
	Ended    time.Time      `json:"ended"`
}
