package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-dev/steward/internal/agent"
	"github.com/steward-dev/steward/internal/event"
	"github.com/steward-dev/steward/internal/logging"
)

// dependenciesTag wraps the structured inference result in backend output.
const dependenciesTag = "dependencies"

const analysisPromptTemplate = `You are analyzing the ordering requirements of a work plan.

Below is an ordered list of work items. For each item, decide which other
items must be completed before it can start. Only name a prerequisite when
the item genuinely consumes the other item's output; do not invent ordering
between independent items.

Work items:
%s
Respond with JSON wrapped in <dependencies></dependencies> tags, mapping each
item index to the list of indices it depends on. Every index must appear as a
key. Example:

<dependencies>
{"0": [], "1": [0], "2": [0], "3": [1, 2]}
</dependencies>`

// Analyzer infers a dependency graph over work items with one backend call.
type Analyzer struct {
	invoker agent.Invoker
	emitter *event.Emitter
	logger  *logging.Logger
	// allowDegraded permits the single-level fallback on inference failure.
	allowDegraded bool
}

// NewAnalyzer creates a dependency analyzer.
func NewAnalyzer(invoker agent.Invoker, emitter *event.Emitter, logger *logging.Logger, allowDegraded bool) *Analyzer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Analyzer{
		invoker:       invoker,
		emitter:       emitter,
		logger:        logger.WithPhase("analysis"),
		allowDegraded: allowDegraded,
	}
}

// Analyze sends all item texts in one request to the backend and builds the
// level partition from the inferred prerequisites. On backend failure,
// unparseable output, or a dependency cycle, it falls back to a single level
// containing all items (logged and emitted as a degraded-mode event) when
// degraded mode is allowed.
func (a *Analyzer) Analyze(ctx context.Context, items []string) (*DependencyGraph, error) {
	g, err := a.infer(ctx, items)
	if err == nil {
		return g, nil
	}

	if !a.allowDegraded {
		return nil, err
	}

	a.logger.Warn("dependency inference failed, degrading to single level",
		"error", err.Error(), "items", len(items))
	if a.emitter != nil {
		a.emitter.Emit(event.AnalysisDegraded{Reason: err.Error()})
	}
	return SingleLevel(items), nil
}

func (a *Analyzer) infer(ctx context.Context, items []string) (*DependencyGraph, error) {
	var sb strings.Builder
	for i, text := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i, text)
	}
	prompt := fmt.Sprintf(analysisPromptTemplate, sb.String())

	tr, err := a.invoker.Invoke(ctx, agent.Request{
		Prompt:       prompt,
		Capabilities: agent.ReadOnlySet,
	})
	if err != nil {
		return nil, err
	}

	var deps map[string][]int
	if err := agent.DecodeTagged(tr.Output, dependenciesTag, &deps); err != nil {
		return nil, err
	}

	nodes, err := buildNodes(items, deps)
	if err != nil {
		return nil, err
	}

	levels, err := BuildLevels(nodes)
	if err != nil {
		return nil, err
	}

	a.logger.Info("dependency graph built", "items", len(items), "levels", len(levels))
	return &DependencyGraph{Nodes: nodes, Levels: levels}, nil
}

// buildNodes validates the inferred mapping against the item list. Unknown or
// self-referential indices make the response unusable.
func buildNodes(items []string, deps map[string][]int) ([]Node, error) {
	nodes := make([]Node, len(items))
	for i, text := range items {
		nodes[i] = Node{Index: i, Text: text}
	}

	for key, prereqs := range deps {
		var idx int
		if _, err := fmt.Sscanf(key, "%d", &idx); err != nil {
			return nil, fmt.Errorf("non-numeric item key %q in inference", key)
		}
		if idx < 0 || idx >= len(items) {
			return nil, fmt.Errorf("item key %d out of range", idx)
		}
		for _, dep := range prereqs {
			if dep < 0 || dep >= len(items) {
				return nil, fmt.Errorf("dependency %d of item %d out of range", dep, idx)
			}
			if dep == idx {
				return nil, fmt.Errorf("item %d depends on itself", idx)
			}
			nodes[idx].DependsOn = append(nodes[idx].DependsOn, dep)
		}
	}

	return nodes, nil
}
