package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/errors"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/logging"
	"github.com/steward-dev/steward/internal/trace"
)

// resolutionTag wraps the structured resolution report in backend output.
const resolutionTag = "resolution"

const resolutionPromptTemplate = `Concurrent work items wrote the same files. Inspect the current
state of each conflicting file (use diff where helpful) and apply edits that
reconcile the divergent writes into a coherent result. Do not make unrelated
changes.

Conflicts:
%s
Respond with JSON wrapped in <resolution></resolution> tags:
{"summary": "what was found and changed",
 "fixes": [{"path": "...", "description": "..."}],
 "warnings": ["things the next level should know"]}`

// resolutionReport is the wire form of the session's structured summary.
type resolutionReport struct {
	Summary string `json:"summary"`
	Fixes   []struct {
		Path        string `json:"path"`
		Description string `json:"description"`
	} `json:"fixes"`
	Warnings []string `json:"warnings"`
}

// Coordinator performs the post-level coordination step.
type Coordinator struct {
	invoker agent.Invoker
	emitter *event.Emitter
	logger  *logging.Logger
}

// New creates a level coordinator.
func New(invoker agent.Invoker, emitter *event.Emitter, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		invoker: invoker,
		emitter: emitter,
		logger:  logger.WithPhase("coordination"),
	}
}

// Coordinate detects conflicts across the level's traces, resolves them with
// at most one agent session (only when conflicts exist; conflict-free levels
// incur zero agent cost), and returns the forward context for the next
// level. The caller guarantees every trace of the level has returned before
// calling. A failed resolution session marks conflicts unresolved and the
// run proceeds with warnings, never an error.
func (c *Coordinator) Coordinate(ctx context.Context, level int, traces []*trace.ExecutionTrace) *LevelContext {
	logger := c.logger.WithLevel(level)

	conflicts := DetectConflicts(traces)
	for _, conflict := range conflicts {
		logger.Info("conflict detected", "path", conflict.Path, "items", conflict.Items)
		if c.emitter != nil {
			c.emitter.Emit(event.ConflictDetected{
				Level: level,
				Path:  conflict.Path,
				Items: conflict.Items,
			})
		}
	}

	lctx := &LevelContext{
		Level:     level,
		Summaries: summarizeTraces(traces),
	}

	if len(conflicts) == 0 {
		return lctx
	}

	lctx.Review = c.resolve(ctx, level, conflicts, logger)
	return lctx
}

// resolve runs the single bounded resolution session for the level.
func (c *Coordinator) resolve(ctx context.Context, level int, conflicts []FileConflict, logger *logging.Logger) *CoordinatorReview {
	review := &CoordinatorReview{Conflicts: conflicts}

	var sb strings.Builder
	for _, conflict := range conflicts {
		fmt.Fprintf(&sb, "- %s written by items %v\n", conflict.Path, conflict.Items)
	}

	tr, err := c.invoker.Invoke(ctx, agent.Request{
		Prompt:       fmt.Sprintf(resolutionPromptTemplate, sb.String()),
		Capabilities: agent.RepairSet,
	})

	var report resolutionReport
	if err == nil {
		err = agent.DecodeTagged(tr.Output, resolutionTag, &report)
	}
	if err != nil {
		// Degraded path: proceed with unresolved conflicts and a warning.
		logger.Warn("conflict resolution failed, proceeding unresolved", "error", err.Error())
		warning := errors.NewCoordinationError("conflict resolution failed", err).
			WithLevel(level).Error()
		review.Summary = "conflict resolution did not complete; conflicts remain"
		review.Warnings = append(review.Warnings, warning)
		for i := range review.Conflicts {
			c.emitUnresolved(level, review.Conflicts[i].Path, warning)
		}
		return review
	}

	review.Summary = report.Summary
	review.Warnings = report.Warnings

	fixed := make(map[string]string, len(report.Fixes))
	for _, fix := range report.Fixes {
		review.Fixes = append(review.Fixes, fmt.Sprintf("%s: %s", fix.Path, fix.Description))
		fixed[fix.Path] = fix.Description
	}

	for i := range review.Conflicts {
		conflict := &review.Conflicts[i]
		if desc, ok := fixed[conflict.Path]; ok {
			conflict.Resolved = true
			conflict.Resolution = desc
			logger.Info("conflict resolved", "path", conflict.Path)
			if c.emitter != nil {
				c.emitter.Emit(event.ConflictResolved{
					Level:       level,
					Path:        conflict.Path,
					Description: desc,
				})
			}
		} else {
			c.emitUnresolved(level, conflict.Path, "resolution session did not address this path")
		}
	}

	return review
}

func (c *Coordinator) emitUnresolved(level int, path, warning string) {
	if c.emitter != nil {
		c.emitter.Emit(event.ConflictUnresolved{Level: level, Path: path, Warning: warning})
	}
}
