package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/checks"
	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/consensus"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/spec"
	"github.com/steward-dev/steward/internal/trace"
)

// stubChecks returns canned mechanical results.
type stubChecks struct {
	results []checks.Result
}

func (s *stubChecks) Run(_ context.Context) ([]checks.Result, error) {
	return s.results, nil
}

// evalInvoker answers semantic and consensus prompts with canned output.
// semanticSeq, when set, scripts one response per semantic call and takes
// precedence over semantic.
type evalInvoker struct {
	semantic       string
	semanticSeq    []string
	judgeDecision  string
	calls          map[string]int
	semanticPrompt string
}

func (e *evalInvoker) Invoke(_ context.Context, req agent.Request) (*trace.ExecutionTrace, error) {
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	tr := trace.New(-1)
	switch {
	case strings.Contains(req.Prompt, "<evaluation>"):
		e.calls["semantic"]++
		e.semanticPrompt = req.Prompt
		if len(e.semanticSeq) > 0 {
			tr.Output = e.semanticSeq[0]
			e.semanticSeq = e.semanticSeq[1:]
		} else {
			tr.Output = e.semantic
		}
	case strings.Contains(req.Prompt, "You are the advocate"):
		e.calls["advocate"]++
		tr.Output = `<vote>{"decision": "approved", "confidence": 0.8, "rationale": "solid"}</vote>`
	case strings.Contains(req.Prompt, "You are the critic"):
		e.calls["critic"]++
		tr.Output = `<vote>{"decision": "rejected", "confidence": 0.7, "rationale": "symptom"}</vote>`
	case strings.Contains(req.Prompt, "You are the judge"):
		e.calls["judge"]++
		tr.Output = fmt.Sprintf(`<verdict>{"decision": %q, "confidence": 0.85, "rationale": "weighed both"}</verdict>`, e.judgeDecision)
	}
	return tr, nil
}

func semanticOutput(satisfaction float64, compliant bool, uncertainty, goalDrift, constraintDrift, schemaDrift float64) string {
	return fmt.Sprintf(`<evaluation>
{"satisfaction": %.2f, "compliant": %t, "uncertainty": %.2f,
 "drift": {"goal": %.2f, "constraints": %.2f, "schema": %.2f},
 "schema_altered": false, "strategy_changed": false, "rationale": "assessed"}
</evaluation>`, satisfaction, compliant, uncertainty, goalDrift, constraintDrift, schemaDrift)
}

func passingChecks() *stubChecks {
	return &stubChecks{results: []checks.Result{{Name: "build", Passed: true}}}
}

func evalConfig() config.EvaluationConfig {
	return config.EvaluationConfig{
		SatisfactionThreshold: 0.8,
		DriftThreshold:        0.3,
		UncertaintyThreshold:  0.3,
		MaxRetries:            2,
	}
}

func pipelineSpec() *spec.Specification {
	return &spec.Specification{
		Goal:         "ship the service",
		WorkItems:    []spec.WorkItem{{Text: "implement handler", Kind: spec.TaskCode}},
		OutputSchema: []spec.SchemaField{{Name: "out", Type: "module"}},
	}
}

func newPipeline(runner checks.Runner, inv agent.Invoker) *Pipeline {
	engine := consensus.NewEngine(inv, nil, nil, 0.2)
	return New(runner, inv, engine, nil, nil, evalConfig(), true, pipelineSpec())
}

func TestStageOneFailureIsRetrySignal(t *testing.T) {
	inv := &evalInvoker{}
	p := newPipeline(&stubChecks{results: []checks.Result{
		{Name: "build", Passed: true},
		{Name: "lint", Passed: false, Message: "unused import"},
	}}, inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.HighestStage != 1 {
		t.Errorf("highest stage = %d, want 1", v.HighestStage)
	}
	if v.Signal != SignalRetry {
		t.Errorf("signal = %s, want retry", v.Signal)
	}
	if v.Approved {
		t.Error("failed checks must not approve")
	}
	if len(v.Reasons) == 0 || !strings.Contains(v.Reasons[0], "unused import") {
		t.Errorf("reasons = %v", v.Reasons)
	}
	// Stage 2 never runs unless stage 1 is all-passing.
	if inv.calls["semantic"] != 0 {
		t.Error("semantic evaluation must not run after failed checks")
	}
}

func TestStageTwoPassApproves(t *testing.T) {
	inv := &evalInvoker{semantic: semanticOutput(0.9, true, 0.1, 0.1, 0.0, 0.0)}
	p := newPipeline(passingChecks(), inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.HighestStage != 2 || !v.Approved || v.Signal != SignalApproved {
		t.Errorf("verdict = %+v", v)
	}
	if inv.calls["judge"] != 0 {
		t.Error("routine completion must not reach consensus")
	}
}

func TestUnparseableSemanticOutputIsRetried(t *testing.T) {
	// The first evaluator call returns no <evaluation> tag; the retry
	// budget absorbs it and the second call carries the verdict.
	inv := &evalInvoker{semanticSeq: []string{
		"I cannot assess this right now.",
		semanticOutput(0.9, true, 0.1, 0.1, 0.0, 0.0),
	}}
	p := newPipeline(passingChecks(), inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if !v.Approved || v.Signal != SignalApproved {
		t.Errorf("verdict = %+v", v)
	}
	if inv.calls["semantic"] != 2 {
		t.Errorf("semantic calls = %d, want 2", inv.calls["semantic"])
	}
}

func TestSemanticRetriesExhaustBudget(t *testing.T) {
	inv := &evalInvoker{semantic: "still no structured verdict"}
	engine := consensus.NewEngine(inv, nil, nil, 0.2)
	cfg := evalConfig()
	cfg.MaxRetries = 1
	p := New(passingChecks(), inv, engine, nil, nil, cfg, true, pipelineSpec())

	_, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}

	var evalErr *errors.EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("error = %T, want *errors.EvaluationError", err)
	}
	if evalErr.Stage != 2 {
		t.Errorf("stage = %d, want 2", evalErr.Stage)
	}
	// One initial call plus one retry.
	if inv.calls["semantic"] != 2 {
		t.Errorf("semantic calls = %d, want 2", inv.calls["semantic"])
	}
}

func TestLowSatisfactionFailsDespiteCompliance(t *testing.T) {
	// Satisfaction 0.6 with compliance true fails the 0.8 threshold and is
	// retried, not escalated, since no trigger fired.
	inv := &evalInvoker{semantic: semanticOutput(0.6, true, 0.1, 0.1, 0.0, 0.0)}
	p := newPipeline(passingChecks(), inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.Approved {
		t.Error("satisfaction below threshold must not approve")
	}
	if v.HighestStage != 2 {
		t.Errorf("highest stage = %d, want 2", v.HighestStage)
	}
	if v.Signal != SignalRejected {
		t.Errorf("signal = %s, want rejected", v.Signal)
	}
	if inv.calls["judge"] != 0 {
		t.Error("no trigger fired; consensus must not run")
	}
}

func TestDriftBelowThresholdDoesNotEscalate(t *testing.T) {
	// goal 0.5, constraints 0.1, schema 0.0 combine to 0.28, under 0.3.
	inv := &evalInvoker{semantic: semanticOutput(0.9, true, 0.1, 0.5, 0.1, 0.0)}
	p := newPipeline(passingChecks(), inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.HighestStage != 2 {
		t.Errorf("combined drift 0.28 must not escalate, stage = %d", v.HighestStage)
	}
	if inv.calls["judge"] != 0 {
		t.Error("consensus must not run")
	}
}

func TestDriftAboveThresholdEscalates(t *testing.T) {
	inv := &evalInvoker{
		semantic:      semanticOutput(0.9, true, 0.1, 0.7, 0.1, 0.0),
		judgeDecision: "approved",
	}
	p := newPipeline(passingChecks(), inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.HighestStage != 3 {
		t.Fatalf("combined drift 0.38 must escalate, stage = %d", v.HighestStage)
	}
	if !v.Approved || v.Signal != SignalApproved {
		t.Errorf("verdict = %+v", v)
	}
	if v.Consensus == nil {
		t.Error("expected consensus outcome on the verdict")
	}
}

func TestFinalItemAlwaysEscalates(t *testing.T) {
	inv := &evalInvoker{
		semantic:      semanticOutput(0.95, true, 0.05, 0.0, 0.0, 0.0),
		judgeDecision: "approved",
	}
	p := newPipeline(passingChecks(), inv)

	item := spec.WorkItem{Text: "ship it", Kind: spec.TaskCode, Final: true}
	v, err := p.Evaluate(context.Background(), 0, item, trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.HighestStage != 3 {
		t.Errorf("final deliverable must escalate, stage = %d", v.HighestStage)
	}
}

func TestFinalItemJudgedAgainstExitConditions(t *testing.T) {
	inv := &evalInvoker{
		semantic:      semanticOutput(0.95, true, 0.05, 0.0, 0.0, 0.0),
		judgeDecision: "approved",
	}
	s := pipelineSpec()
	s.EvaluationPrinciples = []spec.Principle{
		{Name: "clarity", Description: "readable over clever", Weight: 0.6},
	}
	s.ExitConditions = []spec.ExitCondition{
		{Name: "green-build", Description: "the service builds", Criteria: "build passes"},
	}
	engine := consensus.NewEngine(inv, nil, nil, 0.2)
	p := New(passingChecks(), inv, engine, nil, nil, evalConfig(), true, s)

	item := spec.WorkItem{Text: "ship it", Kind: spec.TaskCode, Final: true}
	if _, err := p.Evaluate(context.Background(), 0, item, trace.New(0)); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if !strings.Contains(inv.semanticPrompt, "green-build") {
		t.Error("final item evaluation must include exit conditions")
	}
	if !strings.Contains(inv.semanticPrompt, "clarity") {
		t.Error("evaluation must include the weighted principles")
	}
}

func TestConsensusDecisionSubstitutesForStageTwo(t *testing.T) {
	// Stage two fails but the panel approves; the consensus decision wins.
	inv := &evalInvoker{
		semantic:      semanticOutput(0.5, false, 0.5, 0.0, 0.0, 0.0),
		judgeDecision: "approved",
	}
	p := newPipeline(passingChecks(), inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// Uncertainty 0.5 fired the trigger.
	if v.HighestStage != 3 {
		t.Fatalf("stage = %d, want 3", v.HighestStage)
	}
	if !v.Approved {
		t.Error("consensus approval substitutes for the stage-two failure")
	}
	// Reasons accumulate both the stage-two findings and the outcome.
	joined := strings.Join(v.Reasons, "; ")
	if !strings.Contains(joined, "satisfaction") || !strings.Contains(joined, "consensus") {
		t.Errorf("reasons = %v", v.Reasons)
	}
}

func TestConsensusRejectionRejects(t *testing.T) {
	inv := &evalInvoker{
		semantic:      semanticOutput(0.9, true, 0.5, 0.0, 0.0, 0.0),
		judgeDecision: "rejected",
	}
	p := newPipeline(passingChecks(), inv)

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.Approved || v.Signal != SignalRejected {
		t.Errorf("verdict = %+v", v)
	}
}

func TestConsensusDisabledFallsBackToStageTwo(t *testing.T) {
	inv := &evalInvoker{semantic: semanticOutput(0.9, true, 0.5, 0.0, 0.0, 0.0)}
	engine := consensus.NewEngine(inv, nil, nil, 0.2)
	p := New(passingChecks(), inv, engine, nil, nil, evalConfig(), false, pipelineSpec())

	v, err := p.Evaluate(context.Background(), 0, pipelineSpec().WorkItems[0], trace.New(0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if v.HighestStage != 2 || !v.Approved {
		t.Errorf("verdict = %+v", v)
	}
	if inv.calls["judge"] != 0 {
		t.Error("consensus disabled; judge must not run")
	}
}

func TestDriftCombination(t *testing.T) {
	d := DriftBreakdown{Goal: 0.5, Constraints: 0.1, Schema: 0.0}
	if got := d.Combined(); math.Abs(got-0.28) > 1e-9 {
		t.Errorf("Combined() = %v, want 0.28", got)
	}

	zero := DriftBreakdown{}
	if zero.Combined() != 0 {
		t.Errorf("zero drift combined = %v", zero.Combined())
	}
}
