// Package dag tracks which PerfettoSQL modules include which.
// Edges point from an included module to the module that included it, so a
// topological order lists every module after its includes.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Graph is a directed graph of module keys carrying data of type T.
type Graph[T any] struct {
	nodes   map[string]T
	edges   map[string][]string // included -> includers
	parents map[string][]string // includer -> included
}

// NewGraph creates an empty graph.
func NewGraph[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:   make(map[string]T),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node, or replaces the data of an existing one.
func (g *Graph[T]) AddNode(id string, data T) {
	if _, exists := g.nodes[id]; !exists {
		g.edges[id] = nil
		g.parents[id] = nil
	}
	g.nodes[id] = data
}

// AddEdge records that child includes parent.
func (g *Graph[T]) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Node returns the data stored for id.
func (g *Graph[T]) Node(id string) (T, bool) {
	data, ok := g.nodes[id]
	return data, ok
}

// Parents returns the modules id includes.
func (g *Graph[T]) Parents(id string) []string {
	return sorted(g.parents[id])
}

// Children returns the modules that include id.
func (g *Graph[T]) Children(id string) []string {
	return sorted(g.edges[id])
}

// Nodes returns every node id in sorted order.
func (g *Graph[T]) Nodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes.
func (g *Graph[T]) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph[T]) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// Cycle returns one cycle in the graph, or nil. Modules may include each
// other; the second include is a no-op but the edge is still recorded.
func (g *Graph[T]) Cycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	from := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = grey
		for _, next := range sorted(g.edges[id]) {
			switch color[next] {
			case white:
				from[next] = id
				if dfs(next) {
					return true
				}
			case grey:
				cycle = []string{next}
				for cur := id; cur != next; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{next}, cycle...)
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.Nodes() {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort returns node ids with every module after its includes.
func (g *Graph[T]) TopologicalSort() ([]string, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, fmt.Errorf("cycle detected: %v", cycle)
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range sorted(g.parents[id]) {
			visit(parentID)
		}
		result = append(result, id)
	}

	for _, id := range g.Nodes() {
		visit(id)
	}
	return result, nil
}

// Levels groups node ids by include depth. Level 0 holds modules that
// include nothing.
func (g *Graph[T]) Levels() ([][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(order))
	maxLevel := -1
	for _, id := range order {
		l := 0
		for _, p := range g.parents[id] {
			l = max(l, level[p]+1)
		}
		level[id] = l
		maxLevel = max(maxLevel, l)
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range order {
		levels[level[id]] = append(levels[level[id]], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Upstream returns everything id includes, directly or transitively.
func (g *Graph[T]) Upstream(id string) []string {
	return g.reach(id, g.parents)
}

// Downstream returns every module that includes id, directly or
// transitively.
func (g *Graph[T]) Downstream(id string) []string {
	return g.reach(id, g.edges)
}

// Roots returns modules nothing includes.
func (g *Graph[T]) Roots() []string {
	var roots []string
	for _, id := range g.Nodes() {
		if len(g.edges[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

func (g *Graph[T]) reach(id string, adj map[string][]string) []string {
	seen := make(map[string]bool)
	stack := slices.Clone(adj[id])
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] || cur == id {
			continue
		}
		seen[cur] = true
		stack = append(stack, adj[cur]...)
	}

	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

func sorted(ids []string) []string {
	out := slices.Clone(ids)
	sort.Strings(out)
	return out
}
