// Package coordinator runs the post-level coordination step: detect file
// conflicts between concurrently executed work items, delegate resolution to
// one bounded agent session when conflicts exist, and produce the forward
// context injected into the next level's prompts.
package coordinator

import (
	"sort"

	"github.com/steward-dev/steward/internal/trace"
)

// FileConflict is a detected concurrent write collision: one resource path
// written by two or more distinct work items within the same level.
type FileConflict struct {
	// Path is the conflicting resource path.
	Path string `json:"path"`
	// Items holds the distinct top-level item indices that wrote the path,
	// ascending.
	Items []int `json:"items"`
	// Resolved is set by the resolution step.
	Resolved bool `json:"resolved"`
	// Resolution describes what the resolution session changed.
	Resolution string `json:"resolution,omitempty"`
}

// DetectConflicts scans write-type invocations across all traces of one
// level, grouping by path and attributing each write to its owning top-level
// item (sub-item writes roll up to the parent, so a single item's own
// sub-items never self-conflict). Pure computation, no external calls.
func DetectConflicts(traces []*trace.ExecutionTrace) []FileConflict {
	writers := make(map[string]map[int]bool)

	for _, tr := range traces {
		for _, path := range tr.WrittenPaths() {
			if writers[path] == nil {
				writers[path] = make(map[int]bool)
			}
			writers[path][tr.ItemIndex] = true
		}
	}

	var conflicts []FileConflict
	for path, items := range writers {
		if len(items) < 2 {
			continue
		}
		indices := make([]int, 0, len(items))
		for idx := range items {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		conflicts = append(conflicts, FileConflict{Path: path, Items: indices})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Path < conflicts[j].Path
	})
	return conflicts
}
