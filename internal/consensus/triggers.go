// Package consensus implements the escalated review stage: a fixed trigger
// matrix decides when a work item's artifact deserves multi-perspective
// deliberation, and the engine runs advocate and critic rounds concurrently
// before a judge issues the final decision.
package consensus

import "fmt"

// Triggers is the fixed condition set that escalates evaluation to the
// consensus stage. Any single true condition fires the stage; routine
// atomic-item completions never do.
type Triggers struct {
	// FinalDeliverable marks a final or irreversible artifact.
	FinalDeliverable bool
	// SchemaAltered reports the output schema was changed by the artifact.
	SchemaAltered bool
	// DriftExceeded reports combined drift above the configured threshold.
	DriftExceeded bool
	// UncertaintyExceeded reports stage-two uncertainty above the threshold.
	UncertaintyExceeded bool
	// StrategyChanged reports a lateral-thinking strategy change was adopted.
	StrategyChanged bool
	// OntologyAffecting marks an item explicitly flagged as ontology-affecting.
	OntologyAffecting bool
}

// Fired reports whether any trigger condition is true.
func (t Triggers) Fired() bool {
	return t.FinalDeliverable || t.SchemaAltered || t.DriftExceeded ||
		t.UncertaintyExceeded || t.StrategyChanged || t.OntologyAffecting
}

// Reasons lists the conditions that fired, for verdict reporting.
func (t Triggers) Reasons() []string {
	var reasons []string
	add := func(fired bool, name string) {
		if fired {
			reasons = append(reasons, fmt.Sprintf("trigger: %s", name))
		}
	}
	add(t.FinalDeliverable, "final deliverable")
	add(t.SchemaAltered, "output schema altered")
	add(t.DriftExceeded, "drift above threshold")
	add(t.UncertaintyExceeded, "uncertainty above threshold")
	add(t.StrategyChanged, "strategy change adopted")
	add(t.OntologyAffecting, "ontology-affecting item")
	return reasons
}
