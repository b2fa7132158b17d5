package executor

import (
	"context"
	"fmt"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/logging"
	"github.com/steward-dev/steward/internal/spec"
)

// decompositionTag wraps the structured probe answer in backend output.
const decompositionTag = "decomposition"

const decompositionPromptTemplate = `Decide whether the following work item is atomic or should be
split into independent sub-items that can run concurrently.

Split only when the item genuinely contains %d to %d separable pieces of
work with no ordering between them. When in doubt, keep it atomic.

Work item:
%s

Respond with JSON wrapped in <decomposition></decomposition> tags:
either {"atomic": true}
or {"atomic": false, "sub_items": ["...", "..."]} with %d to %d entries.`

// decompositionAnswer is the wire form of the probe response.
type decompositionAnswer struct {
	Atomic   bool     `json:"atomic"`
	SubItems []string `json:"sub_items"`
}

// probeDecomposition asks the backend whether the item should be split.
// Returns nil (treat as atomic) when decomposition is disabled, the probe
// fails, or the answer violates the sub-item bounds: a bad probe never
// blocks execution.
func (e *Executor) probeDecomposition(ctx context.Context, index int, item spec.WorkItem, logger *logging.Logger) []string {
	if !e.cfg.Decompose {
		return nil
	}

	prompt := fmt.Sprintf(decompositionPromptTemplate,
		e.cfg.MinSubItems, e.cfg.MaxSubItems, item.Text,
		e.cfg.MinSubItems, e.cfg.MaxSubItems)

	tr, err := e.invoker.Invoke(ctx, agent.Request{
		Prompt:       prompt,
		Capabilities: agent.ReadOnlySet,
	})
	if err != nil {
		logger.Warn("decomposition probe failed, treating item as atomic", "error", err.Error())
		return nil
	}

	var answer decompositionAnswer
	if err := agent.DecodeTagged(tr.Output, decompositionTag, &answer); err != nil {
		logger.Warn("unparseable decomposition answer, treating item as atomic", "error", err.Error())
		return nil
	}

	if answer.Atomic {
		return nil
	}
	if len(answer.SubItems) < e.cfg.MinSubItems || len(answer.SubItems) > e.cfg.MaxSubItems {
		logger.Warn("decomposition outside bounds, treating item as atomic",
			"sub_items", len(answer.SubItems))
		return nil
	}
	return answer.SubItems
}
