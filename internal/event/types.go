// Package event defines the run event stream: every significant state
// transition in a run is published as an immutable event carrying a
// monotonically increasing sequence number and the run identifier. The core
// only ever appends events; consumers (console renderer, persistent stores)
// fold them into their own views independently.
package event

import "time"

// Payload is the interface all event payloads implement.
type Payload interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "level.started", "item.failed")
	EventType() string
}

// Envelope wraps a payload with the run-stream metadata every event carries.
type Envelope struct {
	// Seq increases monotonically within one run, starting at 1.
	Seq uint64 `json:"seq"`
	// RunID identifies the run this event belongs to.
	RunID string `json:"run_id"`
	// Type duplicates the payload's event type for consumers that only
	// look at serialized envelopes.
	Type string `json:"type"`
	// Time is when the event was emitted.
	Time time.Time `json:"time"`
	// Payload is the event body.
	Payload Payload `json:"payload"`
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// RunStarted is emitted once at the beginning of a run.
type RunStarted struct {
	Goal      string `json:"goal"`
	ItemCount int    `json:"item_count"`
}

func (RunStarted) EventType() string { return "run.started" }

// RunCompleted is emitted once when the run loop exits.
type RunCompleted struct {
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Success   bool `json:"success"`
}

func (RunCompleted) EventType() string { return "run.completed" }

// AnalysisDegraded is emitted when dependency inference fails and the run
// falls back to a single level containing all items.
type AnalysisDegraded struct {
	Reason string `json:"reason"`
}

func (AnalysisDegraded) EventType() string { return "analysis.degraded" }

// -----------------------------------------------------------------------------
// Level Events
// -----------------------------------------------------------------------------

// LevelStarted is emitted when a level's items begin executing.
type LevelStarted struct {
	Level int   `json:"level"`
	Items []int `json:"items"`
}

func (LevelStarted) EventType() string { return "level.started" }

// LevelCompleted is emitted after a level's coordination step finishes.
type LevelCompleted struct {
	Level     int `json:"level"`
	Conflicts int `json:"conflicts"`
}

func (LevelCompleted) EventType() string { return "level.completed" }

// -----------------------------------------------------------------------------
// Item Events
// -----------------------------------------------------------------------------

// ItemStarted is emitted each time a work item begins an attempt.
type ItemStarted struct {
	Item    int `json:"item"`
	Attempt int `json:"attempt"`
}

func (ItemStarted) EventType() string { return "item.started" }

// ItemDecomposed is emitted when an item is split into sub-items.
type ItemDecomposed struct {
	Item     int `json:"item"`
	SubItems int `json:"sub_items"`
}

func (ItemDecomposed) EventType() string { return "item.decomposed" }

// ItemCompleted is emitted when an item reaches an approved terminal state.
type ItemCompleted struct {
	Item     int  `json:"item"`
	Attempts int  `json:"attempts"`
	Approved bool `json:"approved"`
}

func (ItemCompleted) EventType() string { return "item.completed" }

// ItemFailed is emitted when an item reaches a failed terminal state.
// Reasons accumulates every stage and attempt that was tried.
type ItemFailed struct {
	Item    int      `json:"item"`
	Reasons []string `json:"reasons"`
}

func (ItemFailed) EventType() string { return "item.failed" }

// -----------------------------------------------------------------------------
// Conflict Events
// -----------------------------------------------------------------------------

// ConflictDetected is emitted for each path written by two or more items
// within one level.
type ConflictDetected struct {
	Level int    `json:"level"`
	Path  string `json:"path"`
	Items []int  `json:"items"`
}

func (ConflictDetected) EventType() string { return "conflict.detected" }

// ConflictResolved is emitted when the resolution session reconciles a
// detected conflict.
type ConflictResolved struct {
	Level       int    `json:"level"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

func (ConflictResolved) EventType() string { return "conflict.resolved" }

// ConflictUnresolved is emitted when resolution could not run or did not
// address a conflict; the run proceeds with a warning.
type ConflictUnresolved struct {
	Level   int    `json:"level"`
	Path    string `json:"path"`
	Warning string `json:"warning"`
}

func (ConflictUnresolved) EventType() string { return "conflict.unresolved" }

// -----------------------------------------------------------------------------
// Evaluation Events
// -----------------------------------------------------------------------------

// StageCompleted is emitted after each evaluation stage runs for an item.
type StageCompleted struct {
	Item   int    `json:"item"`
	Stage  int    `json:"stage"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

func (StageCompleted) EventType() string { return "evaluation.stage" }

// VoteCast is emitted for each consensus participant's opinion.
type VoteCast struct {
	Item       int     `json:"item"`
	Role       string  `json:"role"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
}

func (VoteCast) EventType() string { return "consensus.vote" }
