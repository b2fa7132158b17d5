package consensus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/logging"
)

// Role identifies a deliberation participant.
type Role string

const (
	RoleAdvocate Role = "advocate"
	RoleCritic   Role = "critic"
	RoleJudge    Role = "judge"
)

// Decision is a participant's or the engine's final position.
type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionRejected    Decision = "rejected"
	DecisionConditional Decision = "conditional"
)

// Vote is one participant's opinion.
type Vote struct {
	Role       Role     `json:"role"`
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// Outcome is the engine's final verdict for one artifact.
type Outcome struct {
	Decision        Decision `json:"decision"`
	Confidence      float64  `json:"confidence"`
	Rationale       string   `json:"rationale"`
	RequiredChanges []string `json:"required_changes,omitempty"`
	// ReducedConfidence marks that one deliberation voice failed and the
	// judge ruled on incomplete input.
	ReducedConfidence bool   `json:"reduced_confidence"`
	Votes             []Vote `json:"votes"`
}

// Approved reports whether the outcome accepts the artifact. A conditional
// approval counts as approved; the required changes travel with the verdict.
func (o *Outcome) Approved() bool {
	return o.Decision == DecisionApproved || o.Decision == DecisionConditional
}

// voteTag and verdictTag wrap the structured responses in backend output.
const (
	voteTag    = "vote"
	verdictTag = "verdict"
)

const advocatePrompt = `You are the advocate in a review panel. Argue the strengths of the
artifact below: what it accomplishes, where it satisfies the goal and
constraints, and why it should be accepted.

%s

Respond with JSON wrapped in <vote></vote> tags:
{"decision": "approved"|"rejected"|"conditional", "confidence": 0.0-1.0, "rationale": "..."}`

const criticPrompt = `You are the critic in a review panel. Probe whether the artifact below
treats a symptom rather than the root requirement. Ask explicitly: what is
this, really? Is this the root cause or a symptom? Argue the weaknesses.

%s

Respond with JSON wrapped in <vote></vote> tags:
{"decision": "approved"|"rejected"|"conditional", "confidence": 0.0-1.0, "rationale": "..."}`

const judgePrompt = `You are the judge in a review panel. Two positions on the artifact are
given below. Weigh them and issue the final decision.

%s

Advocate position:
%s

Critic position:
%s

Respond with JSON wrapped in <verdict></verdict> tags:
{"decision": "approved"|"rejected"|"conditional", "confidence": 0.0-1.0,
 "rationale": "...", "required_changes": ["..."]}`

const missingPosition = "(this position is missing: the call failed; rule on the surviving input)"

// wireVote is the JSON form of a participant response.
type wireVote struct {
	Decision        Decision `json:"decision"`
	Confidence      float64  `json:"confidence"`
	Rationale       string   `json:"rationale"`
	RequiredChanges []string `json:"required_changes"`
}

// Engine runs the deliberation protocol.
type Engine struct {
	invoker agent.Invoker
	emitter *event.Emitter
	logger  *logging.Logger
	// penalty is subtracted from the judge's confidence when a voice failed.
	penalty float64
}

// NewEngine creates a consensus engine.
func NewEngine(invoker agent.Invoker, emitter *event.Emitter, logger *logging.Logger, penalty float64) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{
		invoker: invoker,
		emitter: emitter,
		logger:  logger.WithPhase("consensus"),
		penalty: penalty,
	}
}

// Deliberate runs the two-round protocol for one artifact: advocate and
// critic concurrently, then the judge once both have returned. A failed
// advocate or critic is recorded as reduced-confidence input, not an error;
// only a failed judge call surfaces as an error.
func (e *Engine) Deliberate(ctx context.Context, item int, artifact string) (*Outcome, error) {
	logger := e.logger.WithItem(item)

	var (
		wg       sync.WaitGroup
		advocate *Vote
		critic   *Vote
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		advocate = e.vote(ctx, item, RoleAdvocate, fmt.Sprintf(advocatePrompt, artifact), logger)
	}()
	go func() {
		defer wg.Done()
		critic = e.vote(ctx, item, RoleCritic, fmt.Sprintf(criticPrompt, artifact), logger)
	}()
	// The judge round never begins until both positions have returned.
	wg.Wait()

	reduced := advocate == nil || critic == nil

	tr, err := e.invoker.Invoke(ctx, agent.Request{
		Prompt:       fmt.Sprintf(judgePrompt, artifact, position(advocate), position(critic)),
		Capabilities: agent.ReadOnlySet,
	})
	if err != nil {
		return nil, errors.NewEvaluationError("judge call failed", err).
			WithItem(item).WithStage(3).WithRetryable(true)
	}

	var ruling wireVote
	if err := agent.DecodeTagged(tr.Output, verdictTag, &ruling); err != nil {
		return nil, errors.NewEvaluationError("unparseable judge verdict", err).
			WithItem(item).WithStage(3).WithRetryable(true)
	}

	confidence := ruling.Confidence
	if reduced {
		confidence -= e.penalty
		if confidence < 0 {
			confidence = 0
		}
		logger.Warn("judge ruled on incomplete input", "confidence", confidence)
	}

	outcome := &Outcome{
		Decision:          ruling.Decision,
		Confidence:        confidence,
		Rationale:         ruling.Rationale,
		RequiredChanges:   ruling.RequiredChanges,
		ReducedConfidence: reduced,
	}
	for _, v := range []*Vote{advocate, critic} {
		if v != nil {
			outcome.Votes = append(outcome.Votes, *v)
		}
	}
	judgeVote := Vote{Role: RoleJudge, Decision: ruling.Decision, Confidence: confidence, Rationale: ruling.Rationale}
	outcome.Votes = append(outcome.Votes, judgeVote)
	e.emitVote(item, judgeVote)

	logger.Info("deliberation complete", "decision", string(outcome.Decision),
		"confidence", confidence, "reduced", reduced)
	return outcome, nil
}

// vote runs one advocate or critic round; a failure returns nil rather than
// stalling the deliberation.
func (e *Engine) vote(ctx context.Context, item int, role Role, prompt string, logger *logging.Logger) *Vote {
	tr, err := e.invoker.Invoke(ctx, agent.Request{
		Prompt:       prompt,
		Capabilities: agent.ReadOnlySet,
	})
	if err != nil {
		logger.Warn("deliberation voice failed", "role", string(role), "error", err.Error())
		return nil
	}

	var w wireVote
	if err := agent.DecodeTagged(tr.Output, voteTag, &w); err != nil {
		logger.Warn("unparseable vote", "role", string(role), "error", err.Error())
		return nil
	}

	v := Vote{Role: role, Decision: w.Decision, Confidence: w.Confidence, Rationale: w.Rationale}
	e.emitVote(item, v)
	return &v
}

func (e *Engine) emitVote(item int, v Vote) {
	if e.emitter != nil {
		e.emitter.Emit(event.VoteCast{
			Item:       item,
			Role:       string(v.Role),
			Decision:   string(v.Decision),
			Confidence: v.Confidence,
		})
	}
}

func position(v *Vote) string {
	if v == nil {
		return missingPosition
	}
	return fmt.Sprintf("decision: %s (confidence %.2f)\n%s",
		v.Decision, v.Confidence, strings.TrimSpace(v.Rationale))
}
