// Package graph holds the module graph discovered while building an archive.
package graph

import (
	"sort"
	"sync"
)

// Node is one module in the graph.
type Node struct {
	Specifier   string `json:"specifier"`
	Remote      bool   `json:"remote,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
}

// Edge represents a directed reference between two modules.
type Edge struct {
	Kind   string // "import", "re-export", "dynamic-import"
	Target string // target specifier (forward) or referrer (reverse)
}

// TraversalResult holds the output of a graph traversal.
type TraversalResult struct {
	Nodes     []TraversalNode `json:"nodes"`
	Edges     []TraversalEdge `json:"edges"`
	Truncated bool            `json:"truncated,omitempty"`
}

// TraversalNode is a node visited during traversal.
type TraversalNode struct {
	Specifier string `json:"specifier"`
	Depth     int    `json:"depth"`
}

// TraversalEdge is an edge traversed during traversal.
type TraversalEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

// Graph provides forward and reverse adjacency over loaded modules.
type Graph struct {
	mu      sync.RWMutex
	nodes   map[string]Node
	forward map[string][]Edge
	reverse map[string][]Edge
	roots   []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]Node),
		forward: make(map[string][]Edge),
		reverse: make(map[string][]Edge),
	}
}

// AddRoot records spec as a build root.
func (g *Graph) AddRoot(spec string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roots = append(g.roots, spec)
}

// AddNode records a loaded module. Adding the same specifier again replaces it.
func (g *Graph) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.Specifier] = n
}

// AddEdge records that source references target. Duplicate edges of the same
// kind are ignored.
func (g *Graph) AddEdge(source, kind, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.forward[source] {
		if e.Target == target && e.Kind == kind {
			return
		}
	}
	g.forward[source] = append(g.forward[source], Edge{Kind: kind, Target: target})
	g.reverse[target] = append(g.reverse[target], Edge{Kind: kind, Target: source})
}

// Roots returns the build roots in the order they were added.
func (g *Graph) Roots() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.roots...)
}

// Node returns the module recorded for spec.
func (g *Graph) Node(spec string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[spec]
	return n, ok
}

// Specifiers returns every node's specifier, sorted.
func (g *Graph) Specifiers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for s := range g.nodes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the direct references of spec.
func (g *Graph) Dependencies(spec string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.forward[spec]...)
}

// Dependents returns the modules that reference spec directly.
func (g *Graph) Dependents(spec string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.reverse[spec]...)
}

// Dangling returns edge targets that have no node, sorted. A complete build
// has none.
func (g *Graph) Dangling() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, edges := range g.forward {
		for _, e := range edges {
			if _, ok := g.nodes[e.Target]; !ok && !seen[e.Target] {
				seen[e.Target] = true
				out = append(out, e.Target)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Traverse performs a BFS from start. direction is "forward" or "reverse".
// maxDepth <= 0 means unlimited; maxNodes <= 0 means unlimited.
func (g *Graph) Traverse(start, direction string, maxDepth, maxNodes int) TraversalResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	adj := g.forward
	if direction == "reverse" {
		adj = g.reverse
	}

	type queueItem struct {
		spec  string
		depth int
	}

	var result TraversalResult
	visited := map[string]bool{start: true}
	queue := []queueItem{{spec: start}}
	result.Nodes = append(result.Nodes, TraversalNode{Specifier: start})

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if maxDepth > 0 && item.depth >= maxDepth {
			continue
		}
		for _, e := range adj[item.spec] {
			if direction == "reverse" {
				result.Edges = append(result.Edges, TraversalEdge{Source: e.Target, Target: item.spec, Kind: e.Kind})
			} else {
				result.Edges = append(result.Edges, TraversalEdge{Source: item.spec, Target: e.Target, Kind: e.Kind})
			}
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			if maxNodes > 0 && len(result.Nodes) >= maxNodes {
				result.Truncated = true
				continue
			}
			result.Nodes = append(result.Nodes, TraversalNode{Specifier: e.Target, Depth: item.depth + 1})
			queue = append(queue, queueItem{spec: e.Target, depth: item.depth + 1})
		}
	}
	return result
}

// Reachable returns every specifier reachable from the roots, sorted.
func (g *Graph) Reachable() []string {
	seen := make(map[string]bool)
	for _, r := range g.Roots() {
		for _, n := range g.Traverse(r, "forward", 0, 0).Nodes {
			seen[n.Specifier] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NodeCount returns the number of modules in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the total number of edges in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, edges := range g.forward {
		count += len(edges)
	}
	return count
}
