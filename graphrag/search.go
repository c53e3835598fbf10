package graphrag

import "math"

// reliabilityFactor maps a tool's observed success rate to the
// multiplicative penalty/bonus named in spec §4.5.2.
func reliabilityFactor(successRate float64) float64 {
	switch {
	case successRate < 0.5:
		return 0.1
	case successRate > 0.9:
		return 1.2
	default:
		return 1
	}
}

// adaptiveAlpha blends semantic and graph relatedness more toward graph
// structure as the graph gets denser (spec §4.5.2: "α = max(0.5, 1 −
// 2·density)").
func adaptiveAlpha(density float64) float64 {
	return math.Max(0.5, 1-2*density)
}

// LocalAlpha lets a caller override the semantic/graph blend on a
// per-node basis, e.g. weighting densely-connected hub tools differently
// than leaf tools (spec §4.5.2: "or per-node via a local-α calculator if
// provided").
type LocalAlpha func(node string) float64

// cosineSimilarity computes cosine similarity between two equal-length
// embeddings, returning 0 for degenerate (zero-norm) vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SearchCandidate is one scored result of HybridSearch.
type SearchCandidate struct {
	Tool  string
	Score float64
}

// HybridSearch combines semantic similarity to queryEmbedding with graph
// relatedness to context (via Adamic-Adar), then scales by each
// candidate's reliability factor, capped at 0.95 (spec §4.5.2).
func HybridSearch(g *Graph, queryEmbedding []float64, embeddings map[string][]float64, context []string, localAlpha LocalAlpha) []SearchCandidate {
	density := g.Density()
	out := make([]SearchCandidate, 0, len(embeddings))
	for tool, emb := range embeddings {
		s := cosineSimilarity(queryEmbedding, emb)
		gRel := AdamicAdarToContext(g, tool, context)

		alpha := adaptiveAlpha(density)
		if localAlpha != nil {
			alpha = localAlpha(tool)
		}

		score := alpha*s + (1-alpha)*gRel
		score *= reliabilityFactor(g.SuccessRate(tool))
		score = math.Min(score, 0.95)
		out = append(out, SearchCandidate{Tool: tool, Score: score})
	}
	sortCandidatesDescending(out)
	return out
}

func sortCandidatesDescending(c []SearchCandidate) {
	for i := 1; i < len(c); i++ {
		j := i
		for j > 0 && c[j-1].Score < c[j].Score {
			c[j-1], c[j] = c[j], c[j-1]
			j--
		}
	}
}
