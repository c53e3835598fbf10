package graphrag

import "math"

// commonNeighborWeight returns the undirected neighbor set of node along
// with the edge weight connecting them (summing both directions if both
// exist), used by Adamic-Adar's numerator.
func commonNeighborWeight(g *Graph, node string) map[string]float64 {
	out := map[string]float64{}
	for _, e := range g.Neighbors(node) {
		out[e.To] += e.Weight
	}
	for _, e := range g.InNeighbors(node) {
		out[e.From] += e.Weight
	}
	return out
}

// AdamicAdar computes the pairwise Adamic-Adar relatedness between u and v
// (spec §4.5.2: "AA(u,v) = Σ edge_weight / log(deg(w)), skipping deg(w) <=
// 1").
func AdamicAdar(g *Graph, u, v string) float64 {
	nu := commonNeighborWeight(g, u)
	nv := commonNeighborWeight(g, v)

	var score float64
	for w, wu := range nu {
		wv, ok := nv[w]
		if !ok {
			continue
		}
		deg := g.Degree(w)
		if deg <= 1 {
			continue
		}
		score += (wu + wv) / 2 / math.Log(float64(deg))
	}
	return score
}

// AdamicAdarToContext extends pairwise Adamic-Adar to a one-vs-context
// score (spec §4.5.2: "max over context; return 1.0 if any context node is
// a direct neighbor, else min(max_score/2, 1)").
func AdamicAdarToContext(g *Graph, node string, context []string) float64 {
	direct := commonNeighborWeight(g, node)
	var maxScore float64
	for _, c := range context {
		if c == node {
			continue
		}
		if _, ok := direct[c]; ok {
			return 1.0
		}
		if s := AdamicAdar(g, node, c); s > maxScore {
			maxScore = s
		}
	}
	if len(context) == 0 {
		return 0
	}
	return math.Min(maxScore/2, 1.0)
}
