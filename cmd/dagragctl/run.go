package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/internal/config"
)

var (
	runDAGFile     string
	runWorkflowID  string
	runTimeoutSecs int

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Execute a DAG described by a JSON task list to completion",
		RunE:  runRun,
	}
)

func init() {
	runCmd.Flags().StringVar(&runDAGFile, "dag", "", "path to a JSON file containing a []dag.Task array (required)")
	runCmd.Flags().StringVar(&runWorkflowID, "workflow-id", "", "workflow id to execute under (default: generated)")
	runCmd.Flags().IntVar(&runTimeoutSecs, "timeout", 120, "overall wall-clock budget in seconds")
	_ = runCmd.MarkFlagRequired("dag")
}

func loadTasks(path string) ([]dag.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dag file: %w", err)
	}
	var tasks []dag.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("parsing dag file: %w", err)
	}
	return tasks, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	tasks, err := loadTasks(runDAGFile)
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
	cpStore, err := buildCheckpointStore(checkpointPath)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}

	exec, _, err := buildExecutor(cfg, cpStore, newLogger())
	if err != nil {
		return err
	}

	workflowID := runWorkflowID
	if workflowID == "" {
		workflowID = fmt.Sprintf("run-%d", time.Now().UnixNano())
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(runTimeoutSecs)*time.Second)
	defer cancel()

	result, err := exec.Execute(ctx, d, workflowID)
	if err != nil && !result.RequiresApproval {
		return fmt.Errorf("execution failed: %w", err)
	}
	return printJSON(result)
}
