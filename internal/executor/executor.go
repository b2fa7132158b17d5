// Package executor runs a single work item through the external agent,
// optionally decomposing it into concurrent sub-items first, and returns the
// merged execution trace. All file-system writes happen inside the agent
// sessions; this package only records what happened.
package executor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/config"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/logging"
	"github.com/steward-dev/steward/internal/spec"
	"github.com/steward-dev/steward/internal/trace"
)

// kindPrompts holds the prompt preamble per task kind. The kind set is
// closed; adding a kind means adding a registry entry, not a new type.
var kindPrompts = map[spec.TaskKind]string{
	spec.TaskCode: `You are implementing one work item of a larger plan.
Make the changes described below in the target tree. Keep the change
focused on this item; other items are handled separately.`,

	spec.TaskResearch: `You are researching one question for a larger plan.
Do not modify any files. Investigate the target tree and report findings.`,

	spec.TaskAnalysis: `You are analyzing existing material for a larger plan.
Do not modify any files. Reason over what is already there and report
conclusions.`,
}

const tracePostamble = `When you are done, report what you did as JSON wrapped in
<trace></trace> tags: {"invocations": [{"tool": ..., "path": ..., "success": ...}], "output": "..."}`

// Executor dispatches work items to the agent backend.
type Executor struct {
	invoker agent.Invoker
	emitter *event.Emitter
	logger  *logging.Logger
	cfg     config.ExecutionConfig
	spec    *spec.Specification
}

// New creates an executor for one specification.
func New(invoker agent.Invoker, emitter *event.Emitter, logger *logging.Logger, cfg config.ExecutionConfig, s *spec.Specification) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		invoker: invoker,
		emitter: emitter,
		logger:  logger.WithPhase("execution"),
		cfg:     cfg,
		spec:    s,
	}
}

// Execute runs the work item at index, first probing whether it should be
// split into 2-5 independent sub-items. Decomposition is never recursive: a
// sub-item is executed directly. levelContext is background rendered from
// earlier levels; feedback carries failure reasons from a prior attempt.
func (e *Executor) Execute(ctx context.Context, index int, item spec.WorkItem, levelContext, feedback string) (*trace.ExecutionTrace, error) {
	logger := e.logger.WithItem(index)

	subItems := e.probeDecomposition(ctx, index, item, logger)
	if len(subItems) == 0 {
		return e.executeAtomic(ctx, index, item, levelContext, feedback)
	}

	logger.Info("item decomposed", "sub_items", len(subItems))
	if e.emitter != nil {
		e.emitter.Emit(event.ItemDecomposed{Item: index, SubItems: len(subItems)})
	}
	return e.executeDecomposed(ctx, index, item, subItems, levelContext, feedback)
}

func (e *Executor) executeAtomic(ctx context.Context, index int, item spec.WorkItem, levelContext, feedback string) (*trace.ExecutionTrace, error) {
	tr, err := e.invoker.Invoke(ctx, agent.Request{
		Prompt:       e.renderPrompt(item, item.Text, feedback),
		Capabilities: agent.CapabilitiesFor(item.Kind),
		Context:      levelContext,
	})
	if err != nil {
		return nil, wrapItemError(err, index)
	}
	tr.ItemIndex = index
	return tr, nil
}

// executeDecomposed runs one concurrent session per sub-item and merges the
// traces, preserving per-sub-item attribution for conflict detection.
func (e *Executor) executeDecomposed(ctx context.Context, index int, item spec.WorkItem, subItems []string, levelContext, feedback string) (*trace.ExecutionTrace, error) {
	subs := make([]trace.ExecutionTrace, len(subItems))
	g, gctx := errgroup.WithContext(ctx)

	for i, text := range subItems {
		g.Go(func() error {
			prompt := e.renderPrompt(item, text, feedback) +
				fmt.Sprintf("\n\nThis is sub-item %d of %d of the parent item:\n%s",
					i+1, len(subItems), item.Text)
			tr, err := e.invoker.Invoke(gctx, agent.Request{
				Prompt:       prompt,
				Capabilities: agent.CapabilitiesFor(item.Kind),
				Context:      levelContext,
			})
			if err != nil {
				return err
			}
			subs[i] = *tr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, wrapItemError(err, index)
	}
	return trace.Merge(index, subs), nil
}

func (e *Executor) renderPrompt(item spec.WorkItem, text, feedback string) string {
	var sb strings.Builder
	sb.WriteString(kindPrompts[item.Kind])
	sb.WriteString("\n\n## Goal\n\n")
	sb.WriteString(e.spec.Goal)

	if constraints := e.spec.RenderConstraints(); constraints != "" {
		sb.WriteString("\n\n## Constraints\n\n")
		sb.WriteString(constraints)
	}

	sb.WriteString("\n## Work item\n\n")
	sb.WriteString(text)

	if feedback != "" {
		sb.WriteString("\n\n## Feedback from the previous attempt\n\n")
		sb.WriteString(feedback)
	}

	sb.WriteString("\n\n")
	sb.WriteString(tracePostamble)
	return sb.String()
}

// wrapItemError attaches the item index to backend errors.
func wrapItemError(err error, index int) error {
	var backendErr *errors.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.WithItem(index)
	}
	return err
}
