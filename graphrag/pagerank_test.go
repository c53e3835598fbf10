package graphrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRankSumsToOneAndFavorsHighInDegree(t *testing.T) {
	g := NewGraph()
	for i := 0; i < 4; i++ {
		g.Observe("leaf", "hub", EdgeDependency)
	}
	g.Observe("hub", "leaf", EdgeDependency)
	// A second in-link gives hub the higher in-degree; with only hub and
	// leaf pointing at each other both would rank equally.
	g.Observe("spoke", "hub", EdgeDependency)

	scores := PageRank(g, DefaultPageRankTolerance)
	require.Contains(t, scores, "hub")
	require.Contains(t, scores, "leaf")

	var total float64
	for _, v := range scores {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-6)
	assert.Greater(t, scores["hub"], scores["leaf"])
}

func TestPageRankEmptyGraphReturnsEmptyMap(t *testing.T) {
	g := NewGraph()
	scores := PageRank(g, DefaultPageRankTolerance)
	assert.Empty(t, scores)
}
