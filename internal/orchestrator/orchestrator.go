// Package orchestrator drives a run end to end: dependency analysis, strict
// level-by-level execution, coordination between levels, and the evaluation
// pipeline for every attempt. Levels never overlap; level N+1 starts only
// after every item of level N has returned and coordination has finished.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/coordinator"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/executor"
	"github.com/steward-dev/steward/internal/graph"
	"github.com/steward-dev/steward/internal/logging"
	"github.com/steward-dev/steward/internal/pipeline"
	"github.com/steward-dev/steward/internal/spec"
	"github.com/steward-dev/steward/internal/trace"
)

// Orchestrator owns the run loop. It holds one instance of every stage and
// sequences them; all cross-stage data flows through explicit values, never
// shared state.
type Orchestrator struct {
	analyzer    *graph.Analyzer
	executor    *executor.Executor
	coordinator *coordinator.Coordinator
	pipeline    *pipeline.Pipeline
	emitter     *event.Emitter
	logger      *logging.Logger
	cfg         config.OrchestratorConfig
	maxParallel int
	spec        *spec.Specification
}

// New creates an orchestrator from already-constructed stages.
func New(analyzer *graph.Analyzer, exec *executor.Executor, coord *coordinator.Coordinator,
	pipe *pipeline.Pipeline, emitter *event.Emitter, logger *logging.Logger,
	cfg config.OrchestratorConfig, maxParallel int, s *spec.Specification) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Orchestrator{
		analyzer:    analyzer,
		executor:    exec,
		coordinator: coord,
		pipeline:    pipe,
		emitter:     emitter,
		logger:      logger.WithPhase("orchestrator"),
		cfg:         cfg,
		maxParallel: maxParallel,
		spec:        s,
	}
}

// Run executes every work item of the specification and returns the run
// report. An error return means the run itself could not proceed (analysis
// refused, context canceled); individual item failures are recorded in the
// report, not returned.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	o.emit(event.RunStarted{Goal: o.spec.Goal, ItemCount: len(o.spec.WorkItems)})

	g, err := o.analyzer.Analyze(ctx, o.spec.ItemTexts())
	if err != nil {
		return nil, err
	}

	report := newReport(o.spec, g, started)
	o.logger.Info("dependency analysis complete",
		"levels", len(g.Levels), "degraded", g.Degraded)

	levelContext := ""
	for level, members := range g.Levels {
		if err := ctx.Err(); err != nil {
			o.markRemaining(report, g, level, "run canceled")
			break
		}

		runnable, skipped := o.partitionLevel(report, g, members)
		for _, idx := range skipped {
			result := report.item(idx)
			result.State = StateSkipped
			result.Reasons = append(result.Reasons, "skipped: depends on a failed item")
			o.emit(event.ItemFailed{Item: idx, Reasons: result.Reasons})
		}
		if len(runnable) == 0 {
			continue
		}

		o.emit(event.LevelStarted{Level: level, Items: runnable})
		o.logger.Info("level started", "level", level, "items", len(runnable))

		traces, err := o.runLevel(ctx, runnable, levelContext, report)
		if err != nil {
			o.markRemaining(report, g, level, "run canceled")
			break
		}

		// Hard barrier: every item of the level has returned before
		// coordination sees any trace.
		lc := o.coordinator.Coordinate(ctx, level, traces)
		levelContext = lc.Render()

		conflicts := 0
		if lc.Review != nil {
			conflicts = len(lc.Review.Conflicts)
		}
		o.emit(event.LevelCompleted{Level: level, Conflicts: conflicts})

		if report.failedCount() > 0 && !o.cfg.ContinueOnFailure {
			o.markRemaining(report, g, level+1, "aborted: an earlier item failed")
			break
		}
	}

	report.finish(time.Now())
	o.emit(event.RunCompleted{
		Completed: report.Completed,
		Failed:    report.Failed,
		Success:   report.Success,
	})
	o.logger.Info("run finished",
		"completed", report.Completed, "failed", report.Failed, "success", report.Success)
	return report, nil
}

// partitionLevel splits a level's members into items that can run and items
// that must be skipped because a direct dependency did not complete. Failure
// propagates transitively since skipped items are themselves non-completed.
func (o *Orchestrator) partitionLevel(report *Report, g *graph.DependencyGraph, members []int) (runnable, skipped []int) {
	for _, idx := range members {
		blocked := false
		for _, dep := range g.Node(idx).DependsOn {
			if s := report.item(dep).State; s == StateFailed || s == StateSkipped {
				blocked = true
				break
			}
		}
		if blocked {
			skipped = append(skipped, idx)
		} else {
			runnable = append(runnable, idx)
		}
	}
	return runnable, skipped
}

// runLevel executes the runnable items of one level concurrently and returns
// the traces of the items that completed. It returns an error only on
// context cancellation; item failures are recorded in the report.
func (o *Orchestrator) runLevel(ctx context.Context, runnable []int, levelContext string, report *Report) ([]*trace.ExecutionTrace, error) {
	eg, gctx := errgroup.WithContext(ctx)
	if o.maxParallel > 0 {
		eg.SetLimit(o.maxParallel)
	}

	traces := make([]*trace.ExecutionTrace, len(runnable))
	for slot, idx := range runnable {
		eg.Go(func() error {
			traces[slot] = o.runItem(gctx, idx, report.item(idx), levelContext)
			return gctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	completed := make([]*trace.ExecutionTrace, 0, len(runnable))
	for _, tr := range traces {
		if tr != nil {
			completed = append(completed, tr)
		}
	}
	return completed, nil
}

// runItem drives the attempt loop for one work item: execute, evaluate,
// retry with accumulated feedback until approved or the attempt budget is
// spent. Returns the approved trace, or nil when the item failed.
func (o *Orchestrator) runItem(ctx context.Context, index int, result *ItemResult, levelContext string) *trace.ExecutionTrace {
	item := o.spec.WorkItems[index]
	logger := o.logger.WithItem(index)
	result.State = StateRunning

	maxAttempts := o.cfg.MaxItemAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	feedback := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		o.emit(event.ItemStarted{Item: index, Attempt: attempt})

		tr, err := o.executor.Execute(ctx, index, item, levelContext, feedback)
		if err != nil {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("attempt %d: execution failed: %v", attempt, err))
			logger.Warn("execution failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil || !errors.IsRetryable(err) {
				break
			}
			feedback = strings.Join(result.Reasons, "\n")
			continue
		}

		verdict, err := o.pipeline.Evaluate(ctx, index, item, tr)
		if err != nil {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("attempt %d: evaluation failed: %v", attempt, err))
			logger.Warn("evaluation failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil || !errors.IsRetryable(err) {
				break
			}
			feedback = strings.Join(result.Reasons, "\n")
			continue
		}

		result.Verdict = verdict
		if verdict.Approved {
			result.State = StateCompleted
			result.Trace = tr
			o.emit(event.ItemCompleted{Item: index, Attempts: attempt, Approved: true})
			logger.Info("item completed", "attempts", attempt, "stage", verdict.HighestStage)
			return tr
		}

		for _, r := range verdict.Reasons {
			result.Reasons = append(result.Reasons, fmt.Sprintf("attempt %d: %s", attempt, r))
		}
		logger.Info("attempt rejected",
			"attempt", attempt, "signal", verdict.Signal.String(), "stage", verdict.HighestStage)
		feedback = strings.Join(result.Reasons, "\n")
	}

	result.State = StateFailed
	o.emit(event.ItemFailed{Item: index, Reasons: result.Reasons})
	logger.Warn("item failed", "attempts", result.Attempts, "reasons", len(result.Reasons))
	return nil
}

// markRemaining skips every still-pending item from the given level onward.
func (o *Orchestrator) markRemaining(report *Report, g *graph.DependencyGraph, fromLevel int, reason string) {
	var marked []int
	for level := fromLevel; level < len(g.Levels); level++ {
		for _, idx := range g.Levels[level] {
			result := report.item(idx)
			if result.State != StatePending {
				continue
			}
			result.State = StateSkipped
			result.Reasons = append(result.Reasons, reason)
			marked = append(marked, idx)
		}
	}
	sort.Ints(marked)
	for _, idx := range marked {
		o.emit(event.ItemFailed{Item: idx, Reasons: report.item(idx).Reasons})
	}
}

func (o *Orchestrator) emit(p event.Payload) {
	if o.emitter != nil {
		o.emitter.Emit(p)
	}
}
