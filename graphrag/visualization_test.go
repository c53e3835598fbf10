package graphrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExportDOTContainsNodesAndEdges(t *testing.T) {
	g := NewGraph()
	g.Observe("fetch", "summarize", EdgeSequence)

	out := ExportDOT(g)
	assert.Contains(t, out, "digraph ToolGraph {")
	assert.Contains(t, out, `"fetch"`)
	assert.Contains(t, out, `"summarize"`)
	assert.Contains(t, out, `"fetch" -> "summarize"`)
}

func TestExportDOTOnEmptyGraphStillValid(t *testing.T) {
	g := NewGraph()
	out := ExportDOT(g)
	assert.Equal(t, "digraph ToolGraph {\n}\n", out)
}
