package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/checks"
	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/consensus"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/logging"
	"github.com/steward-dev/steward/internal/spec"
	"github.com/steward-dev/steward/internal/trace"
)

// evaluationTag wraps the structured stage-two verdict in backend output.
const evaluationTag = "evaluation"

const semanticPromptTemplate = `Evaluate whether the work below satisfies its item, the overall
goal, and the constraints. Score honestly; do not reward effort.

## Goal

%s

## Constraints

%s

## Work item

%s

## What was produced

%s
%s
Respond with JSON wrapped in <evaluation></evaluation> tags:
{"satisfaction": 0.0-1.0, "compliant": true|false, "uncertainty": 0.0-1.0,
 "drift": {"goal": 0.0-1.0, "constraints": 0.0-1.0, "schema": 0.0-1.0},
 "schema_altered": true|false, "strategy_changed": true|false,
 "rationale": "..."}`

// Pipeline runs the three-stage evaluation for work-item artifacts.
type Pipeline struct {
	runner  checks.Runner
	invoker agent.Invoker
	engine  *consensus.Engine
	emitter *event.Emitter
	logger  *logging.Logger
	cfg     config.EvaluationConfig
	// consensusEnabled allows disabling stage three; triggered items are
	// then resolved by the stage-two verdict.
	consensusEnabled bool
	spec             *spec.Specification
}

// New creates an evaluation pipeline.
func New(runner checks.Runner, invoker agent.Invoker, engine *consensus.Engine,
	emitter *event.Emitter, logger *logging.Logger,
	cfg config.EvaluationConfig, consensusEnabled bool, s *spec.Specification) *Pipeline {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Pipeline{
		runner:           runner,
		invoker:          invoker,
		engine:           engine,
		emitter:          emitter,
		logger:           logger.WithPhase("evaluation"),
		cfg:              cfg,
		consensusEnabled: consensusEnabled,
		spec:             s,
	}
}

// Evaluate decides the verdict for one attempt of a work item. A stage-one
// failure returns a retry signal, never an error; errors mean the pipeline
// itself could not complete (a semantic or judge call failed for good).
func (p *Pipeline) Evaluate(ctx context.Context, index int, item spec.WorkItem, tr *trace.ExecutionTrace) (*Verdict, error) {
	logger := p.logger.WithItem(index)

	// Stage 1 — mechanical. All checks must pass; any failure sends the
	// item back to the executor with the failure list as feedback.
	results, err := p.runner.Run(ctx)
	if err != nil {
		return nil, errors.NewEvaluationError("mechanical checks interrupted", err).
			WithItem(index).WithStage(1)
	}

	stage1Passed := checks.AllPassed(results)
	p.emitStage(index, 1, stage1Passed, "")
	if !stage1Passed {
		failures := checks.Failures(results)
		logger.Info("mechanical checks failed", "failing", len(failures))

		verdict := &Verdict{
			HighestStage: 1,
			Signal:       SignalRetry,
			Checks:       results,
		}
		for _, f := range failures {
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("check %q failed: %s", f.Name, f.Message))
		}
		return verdict, nil
	}

	// Stage 2 — semantic. Always runs after stage one passes.
	semantic, err := p.evaluateSemantic(ctx, index, item, tr)
	if err != nil {
		return nil, err
	}

	stage2Passed := semantic.Satisfaction >= p.cfg.SatisfactionThreshold && semantic.Compliant
	p.emitStage(index, 2, stage2Passed, semantic.Rationale)

	verdict := &Verdict{
		HighestStage: 2,
		Checks:       results,
		Semantic:     semantic,
	}
	if !stage2Passed {
		if semantic.Satisfaction < p.cfg.SatisfactionThreshold {
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("satisfaction %.2f below threshold %.2f",
					semantic.Satisfaction, p.cfg.SatisfactionThreshold))
		}
		if !semantic.Compliant {
			verdict.Reasons = append(verdict.Reasons, "acceptance criteria not met")
		}
		if semantic.Rationale != "" {
			verdict.Reasons = append(verdict.Reasons, semantic.Rationale)
		}
	}

	// Stage 3 — consensus, only when the trigger matrix fires.
	triggers := p.triggersFor(item, semantic)
	if !triggers.Fired() || !p.consensusEnabled || p.engine == nil {
		verdict.Approved = stage2Passed
		if stage2Passed {
			verdict.Signal = SignalApproved
		} else {
			verdict.Signal = SignalRejected
		}
		return verdict, nil
	}

	verdict.Reasons = append(verdict.Reasons, triggers.Reasons()...)
	logger.Info("escalating to consensus", "triggers", strings.Join(triggers.Reasons(), "; "))

	outcome, err := p.engine.Deliberate(ctx, index, p.renderArtifact(item, tr, semantic))
	if err != nil {
		return nil, err
	}

	// The consensus decision substitutes for stage two's pass/fail.
	verdict.HighestStage = 3
	verdict.Consensus = outcome
	verdict.Approved = outcome.Approved()
	verdict.Reasons = append(verdict.Reasons,
		fmt.Sprintf("consensus: %s (confidence %.2f): %s",
			outcome.Decision, outcome.Confidence, outcome.Rationale))
	for _, change := range outcome.RequiredChanges {
		verdict.Reasons = append(verdict.Reasons, "required change: "+change)
	}

	if verdict.Approved {
		verdict.Signal = SignalApproved
	} else {
		verdict.Signal = SignalRejected
	}
	p.emitStage(index, 3, verdict.Approved, string(outcome.Decision))
	return verdict, nil
}

func (p *Pipeline) evaluateSemantic(ctx context.Context, index int, item spec.WorkItem, tr *trace.ExecutionTrace) (*SemanticResult, error) {
	var extra strings.Builder
	if principles := p.spec.RenderPrinciples(); principles != "" {
		extra.WriteString("\n## Evaluation principles\n\n")
		extra.WriteString(principles)
	}
	// The final deliverable is judged against the run's exit conditions too.
	if item.Final {
		if conditions := p.spec.RenderExitConditions(); conditions != "" {
			extra.WriteString("\n## Exit conditions\n\n")
			extra.WriteString(conditions)
		}
	}
	prompt := fmt.Sprintf(semanticPromptTemplate,
		p.spec.Goal, p.spec.RenderConstraints(), item.Text, renderTrace(tr), extra.String())

	// A failed or unparseable evaluator call is retried within the
	// evaluation's own budget before the whole attempt errors.
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		semantic, err := p.semanticOnce(ctx, index, prompt)
		if err == nil {
			return semantic, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		p.logger.WithItem(index).Warn("semantic evaluation failed",
			"attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (p *Pipeline) semanticOnce(ctx context.Context, index int, prompt string) (*SemanticResult, error) {
	out, err := p.invoker.Invoke(ctx, agent.Request{
		Prompt:       prompt,
		Capabilities: agent.ReadOnlySet,
	})
	if err != nil {
		return nil, errors.NewEvaluationError("semantic evaluation call failed", err).
			WithItem(index).WithStage(2).WithRetryable(true)
	}

	var semantic SemanticResult
	if err := agent.DecodeTagged(out.Output, evaluationTag, &semantic); err != nil {
		return nil, errors.NewEvaluationError("unparseable semantic evaluation", err).
			WithItem(index).WithStage(2).WithRetryable(true)
	}
	return &semantic, nil
}

// triggersFor builds the trigger matrix for one evaluated artifact.
func (p *Pipeline) triggersFor(item spec.WorkItem, semantic *SemanticResult) consensus.Triggers {
	return consensus.Triggers{
		FinalDeliverable:    item.Final,
		SchemaAltered:       semantic.SchemaAltered,
		DriftExceeded:       semantic.Drift.Combined() > p.cfg.DriftThreshold,
		UncertaintyExceeded: semantic.Uncertainty > p.cfg.UncertaintyThreshold,
		StrategyChanged:     semantic.StrategyChanged,
		OntologyAffecting:   item.OntologyAffecting,
	}
}

// renderArtifact summarizes the artifact and stage-two findings for the
// consensus panel.
func (p *Pipeline) renderArtifact(item spec.WorkItem, tr *trace.ExecutionTrace, semantic *SemanticResult) string {
	var sb strings.Builder
	sb.WriteString("Work item:\n")
	sb.WriteString(item.Text)
	sb.WriteString("\n\nWhat was produced:\n")
	sb.WriteString(renderTrace(tr))
	fmt.Fprintf(&sb, "\nSemantic evaluation: satisfaction %.2f, drift %.2f, uncertainty %.2f\n%s",
		semantic.Satisfaction, semantic.Drift.Combined(), semantic.Uncertainty, semantic.Rationale)
	return sb.String()
}

func renderTrace(tr *trace.ExecutionTrace) string {
	var sb strings.Builder
	sb.WriteString(tr.Output)
	if paths := tr.WrittenPaths(); len(paths) > 0 {
		fmt.Fprintf(&sb, "\n\nFiles written: %s", strings.Join(paths, ", "))
	}
	return sb.String()
}

func (p *Pipeline) emitStage(item, stage int, passed bool, detail string) {
	if p.emitter != nil {
		p.emitter.Emit(event.StageCompleted{Item: item, Stage: stage, Passed: passed, Detail: detail})
	}
}
