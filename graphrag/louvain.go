package graphrag

// DefaultLouvainResolution is the modularity resolution named in spec
// §4.5.1 ("Louvain communities (resolution 1.0)").
const DefaultLouvainResolution = 1.0

// Louvain runs one pass of greedy modularity-maximizing community
// detection over g's undirected projection (edge weight from either
// direction summed) and returns tool_id -> community label (spec §4.5.2).
// This is a single-level Louvain pass (no recursive community
// aggregation): sufficient for the tool-graph sizes this module targets,
// and re-run from scratch on every recompute rather than incrementally
// updated.
func Louvain(g *Graph, resolution float64) map[string]string {
	if resolution <= 0 {
		resolution = DefaultLouvainResolution
	}
	nodes := g.Nodes()
	community := make(map[string]string, len(nodes))
	for _, n := range nodes {
		community[n] = n // each node starts in its own community
	}
	if len(nodes) == 0 {
		return community
	}

	weight := make(map[[2]string]float64)
	degree := make(map[string]float64)
	var totalWeight float64
	for _, e := range g.Edges() {
		w := e.Weight
		key := undirectedKey(e.From, e.To)
		weight[key] += w
		degree[e.From] += w
		degree[e.To] += w
		totalWeight += w
	}
	if totalWeight == 0 {
		return community
	}

	communityDegree := make(map[string]float64, len(nodes))
	for n := range community {
		communityDegree[community[n]] = degree[n]
	}

	improved := true
	for pass := 0; improved && pass < 20; pass++ {
		improved = false
		for _, n := range nodes {
			currentComm := community[n]
			best := currentComm
			bestGain := 0.0

			// Remove n from its current community before evaluating moves.
			communityDegree[currentComm] -= degree[n]

			neighborComms := map[string]float64{}
			for _, e := range g.Edges() {
				if e.From == n {
					neighborComms[community[e.To]] += e.Weight
				}
				if e.To == n {
					neighborComms[community[e.From]] += e.Weight
				}
			}

			for comm, kIn := range neighborComms {
				gain := kIn - resolution*communityDegree[comm]*degree[n]/(2*totalWeight)
				if gain > bestGain {
					bestGain = gain
					best = comm
				}
			}

			communityDegree[best] += degree[n]
			if best != currentComm {
				community[n] = best
				improved = true
			}
		}
	}
	return community
}

func undirectedKey(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}
