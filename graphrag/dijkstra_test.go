package graphrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortestPathFindsPositiveCostRouteOverMixedWeights(t *testing.T) {
	g := NewGraph()
	g.Observe("a", "b", EdgeDependency) // weight 1.0 after promotion
	g.Observe("a", "b", EdgeDependency)
	g.Observe("a", "b", EdgeDependency)
	g.Observe("b", "c", EdgeSequence) // weaker path
	g.Observe("b", "c", EdgeSequence)
	g.Observe("b", "c", EdgeSequence)
	g.Observe("a", "c", EdgeSequence) // single weak hop, never promoted

	cost, ok := ShortestPath(g, "a", "c")
	require.True(t, ok)
	assert.Greater(t, cost, 0.0)
}

func TestShortestPathSameNodeIsZero(t *testing.T) {
	g := NewGraph()
	g.Observe("a", "b", EdgeSequence)
	cost, ok := ShortestPath(g, "a", "a")
	require.True(t, ok)
	assert.Equal(t, 0.0, cost)
}

func TestShortestPathUnreachableReturnsFalse(t *testing.T) {
	g := NewGraph()
	g.Observe("a", "b", EdgeSequence)
	g.Observe("x", "y", EdgeSequence)
	_, ok := ShortestPath(g, "a", "y")
	assert.False(t, ok)
}
