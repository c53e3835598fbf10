// Command dagragctl is the operator CLI for the DAG workflow executor: it
// runs a DAG to completion or resumes one from a checkpoint, replays a
// recorded trace into the GraphRAG recommender for offline learning, and
// inspects the recommender's learned tool graph. Grounded on
// 88lin-divinesense's cmd/divinesense/main.go cobra root-command shape,
// adapted from one long-running server command into several one-shot
// subcommands since this tool drives a library, not a daemon.
package main

import (
	"fmt"
	"os"

	"github.com/kataras/golog"
	"github.com/spf13/cobra"

	"github.com/smallnest/dagrag/internal/obslog"
)

var (
	configPath     string
	checkpointPath string
	graphDBPath    string
	logLevel       string

	rootCmd = &cobra.Command{
		Use:   "dagragctl",
		Short: "Operate and inspect the adaptive DAG workflow executor",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (see internal/config.Config)")
	rootCmd.PersistentFlags().StringVar(&checkpointPath, "checkpoint-db", "", "sqlite file for checkpoint persistence (empty: in-memory, lost on exit)")
	rootCmd.PersistentFlags().StringVar(&graphDBPath, "graph-db", "dagrag-graph.db", "sqlite file backing the GraphRAG tool graph")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(inspectGraphCmd)
	rootCmd.AddCommand(replayTraceCmd)
	rootCmd.AddCommand(watchCmd)
}

func newLogger() obslog.Logger {
	logger := obslog.NewGologLogger(golog.Default)
	switch logLevel {
	case "debug":
		logger.SetLevel(obslog.LevelDebug)
	case "warn":
		logger.SetLevel(obslog.LevelWarn)
	case "error":
		logger.SetLevel(obslog.LevelError)
	default:
		logger.SetLevel(obslog.LevelInfo)
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dagragctl:", err)
		os.Exit(1)
	}
}
