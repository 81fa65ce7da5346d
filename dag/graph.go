// Package dag executes a stage graph in dependency order. Stages within a
// level run concurrently under a bounded limit; execution halts at a level
// boundary on failure or cancellation, never mid-level.
package dag

import (
	"fmt"
	"sort"
)

// Graph declares nodes and the dependencies between them.
type Graph struct {
	Nodes map[string]Node
	Edges []Edge
	// rank remembers declaration order for deterministic level layout.
	rank map[string]int
}

// Edge declares that To depends on From.
type Edge struct {
	From string
	To   string
}

// NewGraph builds a graph from nodes and edges. Declaration order of the
// nodes breaks ties within a dependency level.
func NewGraph(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		Nodes: make(map[string]Node, len(nodes)),
		Edges: edges,
		rank:  make(map[string]int, len(nodes)),
	}
	for i, n := range nodes {
		g.Nodes[n.Name()] = n
		g.rank[n.Name()] = i
	}
	return g
}

func (g *Graph) nodeRank(name string) int {
	if r, ok := g.rank[name]; ok {
		return r
	}
	return len(g.Nodes)
}

// BuildLevels groups nodes by dependency depth with Kahn's algorithm.
// Nodes in the same level have no dependency between them and may run
// concurrently; within a level they keep declaration order, so bounded
// execution is deterministic. Returns an error on a cycle or a dangling
// edge.
func BuildLevels(g *Graph) ([][]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	dependents := make(map[string][]string)

	for name := range g.Nodes {
		inDegree[name] = 0
	}
	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return nil, fmt.Errorf("dag: edge references unknown node %q", e.To)
		}
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	var levels [][]string
	visited := 0
	for len(queue) > 0 {
		sort.Slice(queue, func(i, j int) bool {
			return g.nodeRank(queue[i]) < g.nodeRank(queue[j])
		})
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != len(g.Nodes) {
		return nil, fmt.Errorf("dag: cycle detected, reached %d of %d nodes", visited, len(g.Nodes))
	}
	return levels, nil
}
