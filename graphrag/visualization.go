package graphrag

import (
	"fmt"
	"strings"
)

// ExportDOT renders the tool graph as Graphviz DOT, grounded on
// dag.ExportDOT (itself grounded on the teacher's graph.Exporter), edge
// weight becomes a DOT edge label so a thin/thick rendering reflects
// learned confidence.
func ExportDOT(g *Graph) string {
	var sb strings.Builder
	sb.WriteString("digraph ToolGraph {\n")
	for _, n := range g.Nodes() {
		sb.WriteString(fmt.Sprintf("    %q;\n", n))
	}
	for _, e := range g.Edges() {
		sb.WriteString(fmt.Sprintf("    %q -> %q [label=%q];\n", e.From, e.To, fmt.Sprintf("%s/%.2f", e.Type, e.Weight)))
	}
	sb.WriteString("}\n")
	return sb.String()
}
