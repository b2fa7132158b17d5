package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/steward-dev/steward/internal/graph"
	"github.com/steward-dev/steward/internal/pipeline"
	"github.com/steward-dev/steward/internal/spec"
	"github.com/steward-dev/steward/internal/trace"
)

// ItemState is the terminal (or in-flight) state of one work item.
type ItemState string

const (
	StatePending   ItemState = "pending"
	StateRunning   ItemState = "running"
	StateCompleted ItemState = "completed"
	StateFailed    ItemState = "failed"
	StateSkipped   ItemState = "skipped"
)

// ItemResult is the per-item record accumulated across every attempt.
type ItemResult struct {
	Index    int       `json:"index"`
	Text     string    `json:"text"`
	State    ItemState `json:"state"`
	Attempts int       `json:"attempts"`
	// Reasons accumulates every rejection and failure across all attempts,
	// in order. Never truncated.
	Reasons []string              `json:"reasons,omitempty"`
	Verdict *pipeline.Verdict     `json:"verdict,omitempty"`
	Trace   *trace.ExecutionTrace `json:"-"`
}

// Report is the outcome of one run.
type Report struct {
	Goal      string        `json:"goal"`
	Levels    [][]int       `json:"levels"`
	Degraded  bool          `json:"degraded"`
	Items     []*ItemResult `json:"items"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Success   bool          `json:"success"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
}

func newReport(s *spec.Specification, g *graph.DependencyGraph, started time.Time) *Report {
	items := make([]*ItemResult, len(s.WorkItems))
	for i, w := range s.WorkItems {
		items[i] = &ItemResult{Index: i, Text: w.Text, State: StatePending}
	}
	return &Report{
		Goal:     s.Goal,
		Levels:   g.Levels,
		Degraded: g.Degraded,
		Items:    items,
		Started:  started,
	}
}

func (r *Report) item(index int) *ItemResult {
	return r.Items[index]
}

func (r *Report) failedCount() int {
	n := 0
	for _, item := range r.Items {
		if item.State == StateFailed {
			n++
		}
	}
	return n
}

// finish freezes the counters. Success means every item completed.
func (r *Report) finish(at time.Time) {
	r.Finished = at
	r.Completed, r.Failed, r.Skipped = 0, 0, 0
	for _, item := range r.Items {
		switch item.State {
		case StateCompleted:
			r.Completed++
		case StateFailed:
			r.Failed++
		case StateSkipped:
			r.Skipped++
		}
	}
	r.Success = r.Completed == len(r.Items)
}

// Render formats the report for terminal output.
func (r *Report) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s: %d completed, %d failed, %d skipped (%d levels",
		statusWord(r.Success), r.Completed, r.Failed, r.Skipped, len(r.Levels))
	if r.Degraded {
		sb.WriteString(", degraded analysis")
	}
	fmt.Fprintf(&sb, ", %s)\n", r.Finished.Sub(r.Started).Round(time.Second))

	for _, item := range r.Items {
		fmt.Fprintf(&sb, "  [%s] item %d: %s", item.State, item.Index, item.Text)
		if item.Attempts > 1 {
			fmt.Fprintf(&sb, " (%d attempts)", item.Attempts)
		}
		sb.WriteString("\n")
		if item.State == StateFailed || item.State == StateSkipped {
			for _, reason := range item.Reasons {
				fmt.Fprintf(&sb, "      %s\n", reason)
			}
		}
	}
	return sb.String()
}

func statusWord(success bool) string {
	if success {
		return "succeeded"
	}
	return "failed"
}
