// Package graph infers the dependency structure over a specification's work
// items and partitions it into ordered, internally-parallel execution levels.
package graph

import (
	"sort"

	"github.com/steward-dev/steward/internal/errors"
)

// Node is one work item in the dependency graph.
type Node struct {
	// Index is the item's position in the specification's ordered list.
	Index int
	// Text is the item's natural-language description.
	Text string
	// DependsOn holds the indices this item requires to be completed first.
	DependsOn []int
}

// DependencyGraph is the full ordering over a specification's work items:
// the nodes plus their partition into execution levels. Levels are ordered;
// members of one level have no dependencies among each other and run
// concurrently.
type DependencyGraph struct {
	Nodes []Node
	// Levels partitions node indices: every node appears in exactly one
	// level, and all of a node's dependencies appear in strictly earlier
	// levels. Within a level, indices keep the original item order.
	Levels [][]int
	// Degraded reports that dependency inference failed and all items were
	// placed in a single level.
	Degraded bool
}

// BuildLevels partitions nodes into execution levels via topological
// layering: level 0 holds all nodes with no dependencies; level k holds
// nodes whose dependencies are all satisfied by levels < k.
// Returns ErrDependencyCycle when no progress can be made.
func BuildLevels(nodes []Node) ([][]int, error) {
	inDegree := make(map[int]int, len(nodes))
	for _, n := range nodes {
		inDegree[n.Index] = len(n.DependsOn)
	}

	var levels [][]int
	completed := make(map[int]bool, len(nodes))

	for len(completed) < len(nodes) {
		var current []int
		for _, n := range nodes {
			if completed[n.Index] {
				continue
			}
			if inDegree[n.Index] == 0 {
				current = append(current, n.Index)
			}
		}

		if len(current) == 0 {
			return nil, errors.NewAnalysisError("no progress in topological layering",
				errors.ErrDependencyCycle).WithItemCount(len(nodes))
		}

		// Original item order within a level; deterministic but not
		// significant since level members run concurrently.
		sort.Ints(current)
		levels = append(levels, current)

		for _, idx := range current {
			completed[idx] = true
			for _, n := range nodes {
				for _, dep := range n.DependsOn {
					if dep == idx {
						inDegree[n.Index]--
					}
				}
			}
		}
	}

	return levels, nil
}

// SingleLevel builds the degraded-mode graph: one level containing every
// item, treated as independent.
func SingleLevel(items []string) *DependencyGraph {
	nodes := make([]Node, len(items))
	level := make([]int, len(items))
	for i, text := range items {
		nodes[i] = Node{Index: i, Text: text}
		level[i] = i
	}
	return &DependencyGraph{
		Nodes:    nodes,
		Levels:   [][]int{level},
		Degraded: true,
	}
}

// Node returns the node with the given index.
func (g *DependencyGraph) Node(index int) Node {
	return g.Nodes[index]
}

// LevelOf returns which level the given node index belongs to, or -1 if the
// index is unknown.
func (g *DependencyGraph) LevelOf(index int) int {
	for level, members := range g.Levels {
		for _, idx := range members {
			if idx == index {
				return level
			}
		}
	}
	return -1
}
