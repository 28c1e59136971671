// Package depgraph orders the files of a profile so that every file is
// materialized after the files it depends on.
//
// Ordering is deterministic: independent files come out in lexicographic
// path order, which makes apply traces reproducible and partial failures
// easy to reason about.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/riceify/pkg/types"
)

// CycleError reports a dependency cycle. Cycle lists the nodes along the
// cycle in edge direction, with the first node repeated at the end.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is a directed graph over file paths. An edge from A to B means A
// must be materialized before B.
type Graph struct {
	nodes map[string]struct{}
	preds map[string]map[string]struct{}
	succs map[string]map[string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		preds: make(map[string]map[string]struct{}),
		succs: make(map[string]map[string]struct{}),
	}
}

// FromEdges builds a graph over nodes plus every edge endpoint.
func FromEdges(nodes []string, edges []types.DependencyEdge) *Graph {
	g := New()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		g.AddEdge(e.From, e.To)
	}
	return g
}

// AddNode adds a node without edges. Adding an existing node is a no-op.
func (g *Graph) AddNode(path string) {
	if _, ok := g.nodes[path]; ok {
		return
	}
	g.nodes[path] = struct{}{}
	g.preds[path] = make(map[string]struct{})
	g.succs[path] = make(map[string]struct{})
}

// AddEdge records that from must come before to. Both nodes are added.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.succs[from][to] = struct{}{}
	g.preds[to][from] = struct{}{}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns every node, sorted.
func (g *Graph) Nodes() []string {
	return sortedKeys(g.nodes)
}

// Predecessors returns the nodes that must come before path, sorted.
func (g *Graph) Predecessors(path string) []string {
	return sortedKeys(g.preds[path])
}

// Successors returns the nodes that must come after path, sorted.
func (g *Graph) Successors(path string) []string {
	return sortedKeys(g.succs[path])
}

// Edges returns every edge, sorted by From then To.
func (g *Graph) Edges() []types.DependencyEdge {
	var edges []types.DependencyEdge
	for _, from := range g.Nodes() {
		for _, to := range g.Successors(from) {
			edges = append(edges, types.DependencyEdge{From: from, To: to})
		}
	}
	return edges
}

// Subgraph returns the graph restricted to keep. An edge survives when
// both endpoints are kept.
func (g *Graph) Subgraph(keep []string) *Graph {
	sub := New()
	set := make(map[string]struct{}, len(keep))
	for _, n := range keep {
		set[n] = struct{}{}
		sub.AddNode(n)
	}
	for _, e := range g.Edges() {
		_, fromOK := set[e.From]
		_, toOK := set[e.To]
		if fromOK && toOK {
			sub.AddEdge(e.From, e.To)
		}
	}
	return sub
}

const (
	unvisited = iota
	onStack
	done
)

// TopologicalOrder returns every node such that each edge's From precedes
// its To. A node is emitted as soon as all of its predecessors have been,
// with nodes and predecessors explored in lexicographic order. A cycle
// yields a *CycleError.
func (g *Graph) TopologicalOrder() ([]string, error) {
	state := make(map[string]int, len(g.nodes))
	order := make([]string, 0, len(g.nodes))
	var stack []string

	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case done:
			return nil
		case onStack:
			return g.cycleFrom(stack, n)
		}

		state[n] = onStack
		stack = append(stack, n)
		for _, p := range g.Predecessors(n) {
			if err := visit(p); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		order = append(order, n)
		return nil
	}

	for _, n := range g.Nodes() {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// cycleFrom builds the cycle closed by revisiting n. The stack walks
// predecessor links, so it is reversed into edge direction.
func (g *Graph) cycleFrom(stack []string, n string) *CycleError {
	start := 0
	for i, s := range stack {
		if s == n {
			start = i
			break
		}
	}
	walk := append(append([]string{}, stack[start:]...), n)
	for i, j := 0, len(walk)-1; i < j; i, j = i+1, j-1 {
		walk[i], walk[j] = walk[j], walk[i]
	}
	return &CycleError{Cycle: walk}
}

// Layers groups the nodes into layers: a node's layer is one more than the
// deepest layer among its predecessors, roots are layer 0. Nodes within a
// layer have no edge between them and are sorted.
func (g *Graph) Layers() ([][]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(order))
	maxDepth := -1
	for _, n := range order {
		d := 0
		for p := range g.preds[n] {
			if depth[p]+1 > d {
				d = depth[p] + 1
			}
		}
		depth[n] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	layers := make([][]string, maxDepth+1)
	for _, n := range order {
		layers[depth[n]] = append(layers[depth[n]], n)
	}
	for _, l := range layers {
		sort.Strings(l)
	}
	return layers, nil
}

// Reverse returns layers in reverse order, for undoing a layered apply.
func Reverse(layers [][]string) [][]string {
	out := make([][]string, len(layers))
	for i, l := range layers {
		out[len(layers)-1-i] = l
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
