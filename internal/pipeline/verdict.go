// Package pipeline decides the verdict for a work item's artifact through
// three escalating stages: mechanical checks (zero model cost), a semantic
// backend evaluation, and a conditional consensus review that only runs when
// the trigger matrix fires. Cheap stages gate expensive ones.
package pipeline

import (
	"github.com/steward-dev/steward/internal/checks"
	"github.com/steward-dev/steward/internal/consensus"
)

// Drift weights for the combined score.
const (
	goalWeight       = 0.5
	constraintWeight = 0.3
	schemaWeight     = 0.2
)

// DriftBreakdown is the three-way deviation measurement from stage two.
type DriftBreakdown struct {
	Goal        float64 `json:"goal"`
	Constraints float64 `json:"constraints"`
	Schema      float64 `json:"schema"`
}

// Combined returns the weighted drift sum: goal 0.5, constraints 0.3,
// schema 0.2.
func (d DriftBreakdown) Combined() float64 {
	return goalWeight*d.Goal + constraintWeight*d.Constraints + schemaWeight*d.Schema
}

// SemanticResult is the stage-two verdict for one artifact.
type SemanticResult struct {
	// Satisfaction scores how well the artifact meets the item text, goal,
	// and constraints, in [0,1].
	Satisfaction float64 `json:"satisfaction"`
	// Compliant reports the acceptance criteria were met.
	Compliant bool `json:"compliant"`
	// Uncertainty is the evaluator's self-reported uncertainty, in [0,1].
	Uncertainty float64 `json:"uncertainty"`
	// Drift is the three-way deviation breakdown.
	Drift DriftBreakdown `json:"drift"`
	// SchemaAltered reports the artifact changed the output schema.
	SchemaAltered bool `json:"schema_altered"`
	// StrategyChanged reports a lateral-thinking strategy change was adopted.
	StrategyChanged bool `json:"strategy_changed"`
	// Rationale is the evaluator's explanation.
	Rationale string `json:"rationale"`
}

// Signal tells the orchestrator what to do with the attempt.
type Signal int

const (
	// SignalApproved accepts the artifact.
	SignalApproved Signal = iota
	// SignalRetry returns the item to the executor with mechanical failure
	// feedback; a local retry, not a pipeline failure.
	SignalRetry
	// SignalRejected is a semantic or consensus rejection; the orchestrator
	// decides between re-attempting with the reasons as feedback and
	// marking the item failed.
	SignalRejected
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SignalApproved:
		return "approved"
	case SignalRetry:
		return "retry"
	case SignalRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Verdict is the pipeline's decision for one attempt.
type Verdict struct {
	// HighestStage is the last stage that ran (1, 2, or 3).
	HighestStage int `json:"highest_stage"`
	// Approved is true only if every stage that ran passed, with the
	// consensus decision substituting for stage two's when stage three ran.
	Approved bool `json:"approved"`
	// Signal directs the orchestrator's next move.
	Signal Signal `json:"signal"`
	// Reasons accumulates the explanation from every stage that ran.
	Reasons []string `json:"reasons"`
	// Checks holds the stage-one results.
	Checks []checks.Result `json:"checks,omitempty"`
	// Semantic holds the stage-two result when stage two ran.
	Semantic *SemanticResult `json:"semantic,omitempty"`
	// Consensus holds the stage-three outcome when stage three ran.
	Consensus *consensus.Outcome `json:"consensus,omitempty"`
}
