// Package trace defines the structured record of what an agent session did:
// the ordered tool invocations, the final output, and per-sub-item sub-traces
// for decomposed work items. Traces are immutable once returned by a session.
package trace

import (
	"encoding/json"
	"time"
)

// Write-type tool names. Invocations of these tools mutate the target tree
// and participate in conflict detection.
var writeTools = map[string]bool{
	"write":      true,
	"edit":       true,
	"multi_edit": true,
	"create":     true,
	"delete":     true,
	"move":       true,
}

// ToolInvocation is one atomic action taken by the agent during a session.
type ToolInvocation struct {
	// Tool is the tool name as reported by the backend, lowercased.
	Tool string `json:"tool"`
	// Input is the structured input payload, preserved verbatim.
	Input json.RawMessage `json:"input,omitempty"`
	// Path is the affected resource path, when the tool targets one.
	Path string `json:"path,omitempty"`
	// Success reports whether the invocation completed without error.
	Success bool `json:"success"`
}

// IsWrite reports whether the invocation mutated a resource path.
func (t ToolInvocation) IsWrite() bool {
	return t.Path != "" && writeTools[t.Tool]
}

// ExecutionTrace is the record of one agent invocation for a work item.
// A decomposed item carries one sub-trace per sub-item; the top-level
// invocation list of a decomposed trace is the concatenation of its
// sub-traces' invocations in sub-item order.
type ExecutionTrace struct {
	// ItemIndex is the owning top-level work item.
	ItemIndex int `json:"item_index"`
	// SubItem labels a sub-trace within a decomposed item; -1 for traces
	// that are not sub-traces.
	SubItem int `json:"sub_item"`
	// Invocations are the tool calls in the order the agent made them.
	Invocations []ToolInvocation `json:"invocations"`
	// Output is the agent's final textual output.
	Output string `json:"output"`
	// SubTraces carries per-sub-item traces for decomposed items.
	SubTraces []ExecutionTrace `json:"sub_traces,omitempty"`
	// Started and Finished bound the session wall-clock time.
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// New returns an empty trace for the given item, not a sub-trace.
func New(itemIndex int) *ExecutionTrace {
	return &ExecutionTrace{ItemIndex: itemIndex, SubItem: -1}
}

// Decomposed reports whether the trace was produced by sub-item execution.
func (t *ExecutionTrace) Decomposed() bool {
	return len(t.SubTraces) > 0
}

// WrittenPaths returns the distinct resource paths this trace wrote,
// including writes made inside sub-traces, in first-write order.
func (t *ExecutionTrace) WrittenPaths() []string {
	seen := make(map[string]bool)
	var paths []string

	record := func(invs []ToolInvocation) {
		for _, inv := range invs {
			if inv.IsWrite() && !seen[inv.Path] {
				seen[inv.Path] = true
				paths = append(paths, inv.Path)
			}
		}
	}

	record(t.Invocations)
	for _, sub := range t.SubTraces {
		record(sub.Invocations)
	}
	return paths
}

// Merge combines sub-item traces into a single trace for the parent item.
// Sub-trace ordering and attribution are preserved; the merged invocation
// list concatenates sub-invocations in sub-item order.
func Merge(itemIndex int, subs []ExecutionTrace) *ExecutionTrace {
	merged := New(itemIndex)
	merged.SubTraces = make([]ExecutionTrace, len(subs))
	copy(merged.SubTraces, subs)

	for i := range merged.SubTraces {
		merged.SubTraces[i].ItemIndex = itemIndex
		merged.SubTraces[i].SubItem = i
		merged.Invocations = append(merged.Invocations, merged.SubTraces[i].Invocations...)
	}

	for _, sub := range subs {
		if merged.Started.IsZero() || (!sub.Started.IsZero() && sub.Started.Before(merged.Started)) {
			merged.Started = sub.Started
		}
		if sub.Finished.After(merged.Finished) {
			merged.Finished = sub.Finished
		}
		if sub.Output != "" {
			if merged.Output != "" {
				merged.Output += "\n\n"
			}
			merged.Output += sub.Output
		}
	}
	return merged
}
