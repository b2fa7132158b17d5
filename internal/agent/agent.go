// Package agent defines the narrow contract between steward and the external
// LLM-backed coding agent: prompt text in, structured trace out. The core
// depends only on the Invoker interface, never on the concrete backend.
package agent

import (
	"context"

	"github.com/steward-dev/steward/internal/spec"
	"github.com/steward-dev/steward/internal/trace"
)

// Capability names one tool the agent session is permitted to use.
type Capability string

const (
	CapRead   Capability = "read"
	CapSearch Capability = "search"
	CapWrite  Capability = "write"
	CapEdit   Capability = "edit"
	CapBash   Capability = "bash"
)

// CapabilitySet is the fixed tool surface granted to one session.
type CapabilitySet []Capability

// Strings returns the capability names for command construction.
func (s CapabilitySet) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}

// Capability sets by purpose. Read-only sets are deliberately narrow so that
// research and evaluation sessions cannot touch the target tree.
var (
	// FullSet is granted to code-kind work items.
	FullSet = CapabilitySet{CapRead, CapSearch, CapWrite, CapEdit, CapBash}
	// ReadOnlySet is granted to research and analysis items and to all
	// evaluation and consensus sessions.
	ReadOnlySet = CapabilitySet{CapRead, CapSearch}
	// RepairSet is granted to conflict-resolution sessions: inspect and
	// edit, but no free-form command execution.
	RepairSet = CapabilitySet{CapRead, CapSearch, CapEdit}
)

// CapabilitiesFor returns the capability set for a task kind.
func CapabilitiesFor(kind spec.TaskKind) CapabilitySet {
	switch kind {
	case spec.TaskResearch, spec.TaskAnalysis:
		return ReadOnlySet
	default:
		return FullSet
	}
}

// Request describes one agent session.
type Request struct {
	// Prompt is the full instruction text for the session.
	Prompt string
	// Capabilities is the tool surface granted to the session.
	Capabilities CapabilitySet
	// Context is optional background rendered from prior levels, injected
	// ahead of the prompt.
	Context string
}

// Invoker dispatches one agent session and returns its trace.
// Implementations must honor ctx cancellation and deadlines.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*trace.ExecutionTrace, error)
}
