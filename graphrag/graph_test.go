package graphrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCreatesAndPromotesEdge(t *testing.T) {
	g := NewGraph()
	g.Observe("search", "summarize", EdgeDependency)
	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, SourceInferred, edges[0].Source)
	assert.Equal(t, 1, edges[0].Count)

	g.Observe("search", "summarize", EdgeDependency)
	g.Observe("search", "summarize", EdgeDependency)
	edges = g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, SourceObserved, edges[0].Source, "count crossing 3 promotes inferred->observed")
	assert.Equal(t, 3, edges[0].Count)
	assert.InDelta(t, edgeTypeWeight[EdgeDependency]*sourceModifier[SourceObserved], edges[0].Weight, 1e-9)
}

func TestDirtyFlagTracksMutation(t *testing.T) {
	g := NewGraph()
	assert.False(t, g.Dirty())
	g.Observe("a", "b", EdgeSequence)
	assert.True(t, g.Dirty())
	g.MarkClean()
	assert.False(t, g.Dirty())
}

func TestDegreeCountsBothDirections(t *testing.T) {
	g := NewGraph()
	g.Observe("a", "b", EdgeSequence)
	g.Observe("c", "b", EdgeSequence)
	assert.Equal(t, 2, g.Degree("b"))
}

func TestSuccessRateDefaultsToOneWithoutOutcomes(t *testing.T) {
	g := NewGraph()
	assert.Equal(t, 1.0, g.SuccessRate("unknown"))
	g.RecordOutcome("tool", true)
	g.RecordOutcome("tool", false)
	assert.Equal(t, 0.5, g.SuccessRate("tool"))
}
