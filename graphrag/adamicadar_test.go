package graphrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdamicAdarRewardsSharedNeighbors(t *testing.T) {
	g := NewGraph()
	for i := 0; i < 3; i++ {
		g.Observe("u", "shared1", EdgeSequence)
		g.Observe("v", "shared1", EdgeSequence)
		g.Observe("u", "shared2", EdgeSequence)
		g.Observe("v", "shared2", EdgeSequence)
	}
	// Give shared1/shared2 other neighbors so deg(w) > 1.
	g.Observe("shared1", "other", EdgeSequence)
	g.Observe("shared2", "other", EdgeSequence)

	score := AdamicAdar(g, "u", "v")
	assert.Greater(t, score, 0.0)
}

func TestAdamicAdarIsZeroWithoutSharedNeighbor(t *testing.T) {
	g := NewGraph()
	g.Observe("u", "only", EdgeSequence)
	g.Observe("v", "only", EdgeSequence)
	// "only" has degree 2 here (u,v) -> still counts; in g2 v has no
	// neighbor at all, so u and v share none:
	g2 := NewGraph()
	g2.Observe("u", "lonely", EdgeSequence)
	score := AdamicAdar(g2, "u", "v")
	assert.Equal(t, 0.0, score)
	_ = g
}

func TestAdamicAdarToContextDirectNeighborReturnsOne(t *testing.T) {
	g := NewGraph()
	g.Observe("u", "v", EdgeSequence)
	score := AdamicAdarToContext(g, "u", []string{"v"})
	assert.Equal(t, 1.0, score)
}

func TestAdamicAdarToContextEmptyContextReturnsZero(t *testing.T) {
	g := NewGraph()
	assert.Equal(t, 0.0, AdamicAdarToContext(g, "u", nil))
}
