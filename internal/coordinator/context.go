package coordinator

import (
	"fmt"
	"strings"

	"github.com/steward-dev/steward/internal/trace"
)

// ItemSummary is a one-line account of what one item accomplished in a level.
type ItemSummary struct {
	Item    int      `json:"item"`
	Summary string   `json:"summary"`
	Paths   []string `json:"paths,omitempty"`
}

// CoordinatorReview is the outcome of the conflict resolution step.
// It exists only for levels where conflicts were detected.
type CoordinatorReview struct {
	Conflicts []FileConflict `json:"conflicts"`
	Summary   string         `json:"summary"`
	Fixes     []string       `json:"fixes,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// LevelContext is the forward-flowing summary of one completed level,
// injected as background for every item in the next level. Immutable once
// attached.
type LevelContext struct {
	Level     int                `json:"level"`
	Summaries []ItemSummary      `json:"summaries"`
	Review    *CoordinatorReview `json:"review,omitempty"`
}

// summarizeTraces builds per-item one-line summaries from the level's traces.
func summarizeTraces(traces []*trace.ExecutionTrace) []ItemSummary {
	summaries := make([]ItemSummary, 0, len(traces))
	for _, tr := range traces {
		summaries = append(summaries, ItemSummary{
			Item:    tr.ItemIndex,
			Summary: firstLine(tr.Output),
			Paths:   tr.WrittenPaths(),
		})
	}
	return summaries
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxLen = 200
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

// Render produces the textual background block injected into the next
// level's prompts.
func (c *LevelContext) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Completed level %d:\n", c.Level)
	for _, s := range c.Summaries {
		fmt.Fprintf(&sb, "- item %d: %s", s.Item, s.Summary)
		if len(s.Paths) > 0 {
			fmt.Fprintf(&sb, " (touched: %s)", strings.Join(s.Paths, ", "))
		}
		sb.WriteString("\n")
	}

	if c.Review != nil {
		sb.WriteString("\nCoordinator review:\n")
		sb.WriteString(c.Review.Summary)
		sb.WriteString("\n")
		for _, w := range c.Review.Warnings {
			fmt.Fprintf(&sb, "- warning: %s\n", w)
		}
	}
	return sb.String()
}
