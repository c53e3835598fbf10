package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/graphrag"
	"github.com/smallnest/dagrag/graphrag/embedding"
	gsqlite "github.com/smallnest/dagrag/graphrag/sqlite"
)

var (
	traceFile string

	replayTraceCmd = &cobra.Command{
		Use:   "replay-trace",
		Short: "Feed a recorded execution trace into the GraphRAG recommender for offline learning",
		RunE:  runReplayTrace,
	}
)

func init() {
	replayTraceCmd.Flags().StringVar(&traceFile, "trace", "", "path to a JSON {tasks, results} trace file (required)")
	_ = replayTraceCmd.MarkFlagRequired("trace")
}

// executionTrace is the on-disk shape a completed workflow's tasks and
// outcomes are recorded in for later replay, mirroring the pair
// Core.RecordTrace expects: the DAG that ran, and what each task produced.
type executionTrace struct {
	Tasks   []dag.Task       `json:"tasks"`
	Results []dag.TaskResult `json:"results"`
}

func runReplayTrace(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(traceFile)
	if err != nil {
		return fmt.Errorf("reading trace file: %w", err)
	}
	var trace executionTrace
	if err := json.Unmarshal(raw, &trace); err != nil {
		return fmt.Errorf("parsing trace file: %w", err)
	}
	d, err := dag.New(trace.Tasks)
	if err != nil {
		return fmt.Errorf("invalid dag in trace: %w", err)
	}

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

	core.RecordTrace(d, trace.Results)

	result, err := core.Recompute(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("recompute failed: %w", err)
	}
	if err := core.Persist(cmd.Context()); err != nil {
		return fmt.Errorf("persisting graph: %w", err)
	}

	return printJSON(result)
}
