package dag

import (
	"fmt"
	"strings"
)

// ExportMermaid renders a DAG as a Mermaid flowchart, grounded on the
// teacher's graph.Exporter.DrawMermaid: node declarations followed by
// edges, one per line.
func ExportMermaid(d *DAG) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	for _, t := range d.Tasks {
		sb.WriteString(fmt.Sprintf("    %s[%q]\n", sanitizeID(t.ID), t.Tool))
	}
	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeID(dep), sanitizeID(t.ID)))
		}
	}
	return sb.String()
}

// ExportDOT renders a DAG as Graphviz DOT.
func ExportDOT(d *DAG) string {
	var sb strings.Builder
	sb.WriteString("digraph DAG {\n")
	for _, t := range d.Tasks {
		sb.WriteString(fmt.Sprintf("    %q [label=%q];\n", t.ID, t.Tool))
	}
	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			sb.WriteString(fmt.Sprintf("    %q -> %q;\n", dep, t.ID))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func sanitizeID(id string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id)
}
