package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/internal/config"
)

var (
	resumeDAGFile      string
	resumeCheckpointID string

	resumeCmd = &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused or checkpointed workflow and stream its remaining events",
		RunE:  runResume,
	}
)

func init() {
	resumeCmd.Flags().StringVar(&resumeDAGFile, "dag", "", "path to a JSON []dag.Task file (may be a replanned DAG, per spec's resume semantics)")
	resumeCmd.Flags().StringVar(&resumeCheckpointID, "checkpoint-id", "", "checkpoint id to resume from (required)")
	_ = resumeCmd.MarkFlagRequired("dag")
	_ = resumeCmd.MarkFlagRequired("checkpoint-id")
}

func runResume(cmd *cobra.Command, args []string) error {
	tasks, err := loadTasks(resumeDAGFile)
	if err != nil {
		return err
	}
	d, err := dag.New(tasks)
	if err != nil {
		return fmt.Errorf("invalid dag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if checkpointPath == "" {
		return fmt.Errorf("--checkpoint-db is required to resume (no checkpoint survives an in-memory store across processes)")
	}
	cpStore, err := buildCheckpointStore(checkpointPath)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}

	exec, _, err := buildExecutor(cfg, cpStore, newLogger())
	if err != nil {
		return err
	}

	evCh, resCh, err := exec.ResumeFromCheckpoint(cmd.Context(), d, resumeCheckpointID)
	if err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}

	for ev := range evCh {
		fmt.Printf("[%s] %s layer=%d task=%s\n", ev.Timestamp.Format("15:04:05.000"), ev.Kind, ev.LayerIndex, ev.TaskID)
	}
	result := <-resCh
	if result.Err != nil {
		return fmt.Errorf("execution failed: %w", result.Err)
	}
	return printJSON(result.Result)
}
