package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/smallnest/dagrag/graphrag"
	"github.com/smallnest/dagrag/graphrag/embedding"
	gsqlite "github.com/smallnest/dagrag/graphrag/sqlite"
)

var (
	inspectFormat string

	inspectGraphCmd = &cobra.Command{
		Use:   "inspect-graph",
		Short: "Print the learned tool graph (--graph-db) as Graphviz DOT or a plain summary",
		RunE:  runInspectGraph,
	}
)

func init() {
	inspectGraphCmd.Flags().StringVar(&inspectFormat, "format", "dot", "dot or summary")
}

func runInspectGraph(cmd *cobra.Command, args []string) error {
	store, err := gsqlite.New(graphDBPath)
	if err != nil {
		return fmt.Errorf("opening graph db: %w", err)
	}
	defer store.Close()

	embedder := embedding.NewHashEmbedder(64)
	core := graphrag.NewCore(graphrag.DefaultConfig(embedder.Dim()), store, embedder, rand.New(rand.NewSource(1)))
	if err := core.Load(cmd.Context()); err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	switch inspectFormat {
	case "summary":
		fmt.Printf("nodes: %d\n", len(core.Graph.Nodes()))
		fmt.Printf("edges: %d\n", len(core.Graph.Edges()))
		fmt.Printf("capabilities: %d\n", len(core.Hypergraph.All()))
		history := core.EntropyHistory()
		if len(history) > 0 {
			fmt.Printf("latest entropy: %.4f (at %s)\n", history[len(history)-1].Entropy, history[len(history)-1].Timestamp.Format("2006-01-02T15:04:05"))
		}
	default:
		fmt.Print(graphrag.ExportDOT(core.Graph))
	}
	return nil
}
