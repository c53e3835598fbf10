package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/smallnest/dagrag/checkpoint"
	"github.com/smallnest/dagrag/checkpoint/memory"
	chsqlite "github.com/smallnest/dagrag/checkpoint/sqlite"
	"github.com/smallnest/dagrag/commands"
	"github.com/smallnest/dagrag/decisions"
	"github.com/smallnest/dagrag/events"
	"github.com/smallnest/dagrag/executor"
	"github.com/smallnest/dagrag/internal/config"
	"github.com/smallnest/dagrag/internal/obslog"
	"github.com/smallnest/dagrag/ratelimit"
	"github.com/smallnest/dagrag/scheduler"
)

// buildCheckpointStore picks a persistence backend for one CLI invocation:
// an on-disk sqlite file when --checkpoint-db is set, an in-process map
// otherwise (fine for a one-shot `run`, useless across process restarts).
func buildCheckpointStore(path string) (checkpoint.Store, error) {
	if path == "" {
		return memory.New(), nil
	}
	return chsqlite.New(chsqlite.Options{Path: path})
}

// echoToolExecutor stands in for the real MCP/tool dispatch layer this CLI
// has no transport to reach: it logs the call and returns its arguments
// back as the result, enough to drive a DAG through to completion for
// local inspection (grounded on the scheduler_test.go ToolExecutorFunc
// stub harness).
func echoToolExecutor(log obslog.Logger) scheduler.ToolExecutorFunc {
	return func(ctx context.Context, tool string, args map[string]any) (any, error) {
		log.Debug("tool invoked", "tool", tool, "args", fmt.Sprintf("%v", args))
		return map[string]any{"tool": tool, "echo": args}, nil
	}
}

// buildExecutor wires one Scheduler + Executor from a loaded Config, the
// same collaborators transport/execctl.newTestServer assembles for tests,
// minus the HTTP surface.
func buildExecutor(cfg config.Config, cpStore checkpoint.Store, log obslog.Logger) (*executor.Executor, *events.Stream, error) {
	policy, err := decisions.NewPolicy("", "")
	if err != nil {
		return nil, nil, err
	}

	stream := events.NewStream()
	gates := &decisions.Gates{
		Stream:     stream,
		Policy:     policy,
		Log:        log,
		AIL:        decisions.AILTrigger(cfg.AIL.DecisionPoints),
		HIL:        decisions.HILTrigger(cfg.HIL.ApprovalRequired),
		AILTimeout: time.Duration(cfg.Timeouts.AILMS) * time.Millisecond,
		HILTimeout: time.Duration(cfg.Timeouts.HILMS) * time.Millisecond,
	}
	if !cfg.AIL.Enabled {
		gates.AIL = decisions.AILManual
	}
	if !cfg.HIL.Enabled {
		gates.HIL = decisions.HILNever
	}

	sched := scheduler.New(&scheduler.Scheduler{
		Stream:              stream,
		Queue:               commands.NewQueue(),
		Checkpoints:         cpStore,
		Limiter:             ratelimit.New(ratelimit.Bucket{Requests: 100, Per: time.Second}),
		Gates:               gates,
		Log:                 log,
		ToolExecutor:        echoToolExecutor(log),
		MaxConcurrency:      int64(cfg.MaxConcurrency),
		TaskTimeout:         time.Duration(cfg.TaskTimeoutMS) * time.Millisecond,
		CheckpointRetention: cfg.CheckpointRetention,
	})

	return executor.New(sched, cpStore), stream, nil
}

// printJSON pretty-prints v to stdout; used by every subcommand's final
// report so scripted callers can pipe dagragctl output to jq.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
