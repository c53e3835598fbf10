package graphrag

import "math"

// DefaultPageRankTolerance is the convergence tolerance named in spec
// §4.5.1 ("weighted, tolerance 1e-4").
const DefaultPageRankTolerance = 1e-4

const (
	pageRankDamping  = 0.85
	pageRankMaxIters = 200
)

// PageRank runs weighted power iteration over g and returns a score in
// [0,1] per node, normalized to sum to 1 as a probability distribution
// (spec §4.5.2 "publish scores: tool_id -> [0,1]").
func PageRank(g *Graph, tolerance float64) map[string]float64 {
	if tolerance <= 0 {
		tolerance = DefaultPageRankTolerance
	}
	nodes := g.Nodes()
	n := len(nodes)
	scores := make(map[string]float64, n)
	if n == 0 {
		return scores
	}
	for _, node := range nodes {
		scores[node] = 1.0 / float64(n)
	}

	outWeight := make(map[string]float64, n)
	edgesBySource := make(map[string][]Edge)
	for _, e := range g.Edges() {
		outWeight[e.From] += e.Weight
		edgesBySource[e.From] = append(edgesBySource[e.From], e)
	}

	for iter := 0; iter < pageRankMaxIters; iter++ {
		next := make(map[string]float64, n)
		base := (1 - pageRankDamping) / float64(n)
		for _, node := range nodes {
			next[node] = base
		}

		var danglingMass float64
		for _, node := range nodes {
			if outWeight[node] == 0 {
				danglingMass += scores[node]
			}
		}
		danglingShare := pageRankDamping * danglingMass / float64(n)
		for _, node := range nodes {
			next[node] += danglingShare
		}

		for _, node := range nodes {
			ow := outWeight[node]
			if ow == 0 {
				continue
			}
			contribution := pageRankDamping * scores[node] / ow
			for _, e := range edgesBySource[node] {
				next[e.To] += contribution * e.Weight
			}
		}

		var delta float64
		for _, node := range nodes {
			delta += math.Abs(next[node] - scores[node])
		}
		scores = next
		if delta < tolerance {
			break
		}
	}

	// Normalize into [0,1]; power iteration already sums to ~1, but
	// normalize explicitly to absorb any residual drift.
	var total float64
	for _, v := range scores {
		total += v
	}
	if total > 0 {
		for k := range scores {
			scores[k] /= total
		}
	}
	return scores
}
