// Package graphrag implements the GraphRAG learning core (C5, spec §4.5):
// a weighted tool graph, a capability hypergraph, classic graph algorithms
// over both, and a learned SHGAT attention scorer used to recommend tools
// and capabilities for a given intent. No example repo in the retrieval
// pack implements graph-algorithm primitives (PageRank/Louvain/Adamic-Adar/
// Dijkstra/attention scoring), so this package is original code grounded on
// the teacher's own persistence/concurrency idioms rather than an existing
// graph library (see DESIGN.md).
package graphrag

import (
	"sort"
	"sync"
)

// EdgeType distinguishes why an edge exists (spec §3 Graph (tool-level)).
type EdgeType string

const (
	EdgeDependency EdgeType = "dependency"
	EdgeContains   EdgeType = "contains"
	EdgeProvides   EdgeType = "provides"
	EdgeSequence   EdgeType = "sequence"
)

// EdgeSource distinguishes how an edge was learned.
type EdgeSource string

const (
	SourceObserved EdgeSource = "observed"
	SourceInferred EdgeSource = "inferred"
	SourceTemplate EdgeSource = "template"
)

// edgeTypeWeight gives each EdgeType a base weight; combined with a
// per-edge source modifier to get the final Weight (spec §4.5.1 "weight =
// edge_type_weight × source_modifier").
var edgeTypeWeight = map[EdgeType]float64{
	EdgeDependency: 1.0,
	EdgeContains:   0.8,
	EdgeProvides:   0.9,
	EdgeSequence:   0.6,
}

// sourceModifier discounts inferred/template edges relative to directly
// observed ones.
var sourceModifier = map[EdgeSource]float64{
	SourceObserved: 1.0,
	SourceInferred: 0.7,
	SourceTemplate: 0.5,
}

// observedThreshold is the edge-count at which an inferred edge is
// promoted to observed (spec §3: "transitions inferred → observed when
// its count crosses 3").
const observedThreshold = 3

// Edge is one directed connection between two tool ids.
type Edge struct {
	From   string
	To     string
	Type   EdgeType
	Source EdgeSource
	Count  int
	Weight float64 // edge_type_weight(Type) * sourceModifier(Source)
}

// edgeKey identifies an edge for the multigraph's internal map: one edge
// per (from, to, type) triple, since the same pair of tools can be linked
// by more than one edge type simultaneously.
type edgeKey struct {
	from string
	to   string
	typ  EdgeType
}

// Graph is the directed, weighted tool-level multigraph (spec §3). It is
// single-writer/multi-reader: Observe/Infer calls are made only from the
// post-execution learning step, while reads (hybrid search, algorithms)
// may run concurrently with each other (spec §5 "Graph + SHGAT params").
type Graph struct {
	mu     sync.RWMutex
	edges  map[edgeKey]*Edge
	nodes  map[string]struct{}
	dirty  bool
	trials map[string]int // tool -> execution count, for success_rate
	ok     map[string]int // tool -> successful execution count
}

// NewGraph returns an empty tool graph.
func NewGraph() *Graph {
	return &Graph{
		edges:  make(map[edgeKey]*Edge),
		nodes:  make(map[string]struct{}),
		trials: make(map[string]int),
		ok:     make(map[string]int),
	}
}

// RecordOutcome tracks one execution outcome for tool, feeding the
// reliability factor used by hybrid search (spec §4.5.2).
func (g *Graph) RecordOutcome(tool string, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[tool] = struct{}{}
	g.trials[tool]++
	if success {
		g.ok[tool]++
	}
}

// SuccessRate returns the observed success rate for tool, defaulting to 1
// (fully reliable) when no outcomes have been recorded yet.
func (g *Graph) SuccessRate(tool string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	trials := g.trials[tool]
	if trials == 0 {
		return 1
	}
	return float64(g.ok[tool]) / float64(trials)
}

// Density returns the directed-graph edge density |E| / (|V|*(|V|-1)),
// used by hybrid search's adaptive alpha (spec §4.5.2).
func (g *Graph) Density() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := len(g.nodes)
	if n < 2 {
		return 0
	}
	return float64(len(g.edges)) / float64(n*(n-1))
}

func combinedWeight(typ EdgeType, src EdgeSource) float64 {
	return edgeTypeWeight[typ] * sourceModifier[src]
}

// Observe records one directly-observed traversal of an edge, creating it
// if absent, incrementing its count, and recomputing its weight (spec
// §4.5.1 "for every edge ... increment count, recompute weight").
func (g *Graph) Observe(from, to string, typ EdgeType) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[from] = struct{}{}
	g.nodes[to] = struct{}{}

	key := edgeKey{from, to, typ}
	e, ok := g.edges[key]
	if !ok {
		e = &Edge{From: from, To: to, Type: typ, Source: SourceInferred}
		g.edges[key] = e
	}
	e.Count++
	if e.Count >= observedThreshold {
		e.Source = SourceObserved
	}
	e.Weight = combinedWeight(e.Type, e.Source)
	g.dirty = true
}

// Infer records a template/fan-out-fan-in edge (e.g. layer N -> layer N+1
// connections) under the given source. It promotes the edge to observed at
// the same count as Observe does (observedThreshold).
func (g *Graph) Infer(from, to string, typ EdgeType, source EdgeSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[from] = struct{}{}
	g.nodes[to] = struct{}{}

	key := edgeKey{from, to, typ}
	e, ok := g.edges[key]
	if !ok {
		e = &Edge{From: from, To: to, Type: typ, Source: source}
		g.edges[key] = e
	}
	e.Count++
	if e.Count >= observedThreshold && e.Source != SourceObserved {
		e.Source = SourceObserved
	}
	e.Weight = combinedWeight(e.Type, e.Source)
	g.dirty = true
}

// Dirty reports whether the graph has mutated since the last MarkClean
// call (used to gate lazy recompute of PageRank/Louvain/hierarchy).
func (g *Graph) Dirty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dirty
}

// MarkClean clears the dirty flag after a recompute has consumed the
// latest mutations.
func (g *Graph) MarkClean() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dirty = false
}

// Nodes returns every tool id currently in the graph, sorted for
// deterministic iteration.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Edges returns a snapshot copy of every edge (copy-on-write read, per
// spec §5 "no torn reads of weights").
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, *e)
	}
	return out
}

// Neighbors returns the out-edges of node, snapshotted.
func (g *Graph) Neighbors(node string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.From == node {
			out = append(out, *e)
		}
	}
	return out
}

// InNeighbors returns the in-edges of node, snapshotted.
func (g *Graph) InNeighbors(node string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.To == node {
			out = append(out, *e)
		}
	}
	return out
}

// Degree returns the undirected degree of node (count of distinct
// neighbors in either direction), used by Adamic-Adar's log(deg(w)) term.
func (g *Graph) Degree(node string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, e := range g.edges {
		if e.From == node {
			seen[e.To] = struct{}{}
		}
		if e.To == node {
			seen[e.From] = struct{}{}
		}
	}
	return len(seen)
}
