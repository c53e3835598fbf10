// Package scheduler implements the Kahn-layered, settle-all parallel
// dispatch engine of spec §4.1/§5 (C1). Grounded on the teacher's
// graph/state_graph.go executeNodesParallel/processNodeResults (the
// per-layer goroutine fan-out + result-channel collection pattern),
// generalized from StateGraph nodes to the spec's typed Task/TaskResult
// model, and on other_examples' DAGExecutor (ScheduleNextBatch) for the
// layer-at-a-time scheduling shape.
package scheduler

import (
	"context"

	"github.com/smallnest/dagrag/dag"
)

// ToolExecutor dispatches an mcp_tool task (spec §4.1 step 4, spec.md §1's
// "ToolExecutor" external collaborator — intentionally not implemented by
// this module; callers inject their own).
type ToolExecutor interface {
	Execute(ctx context.Context, tool string, args map[string]any) (any, error)
}

// SandboxExecutor dispatches a code_execution task against a worker-bridge
// sandbox. Implementations return *dag.SandboxError for permission denials
// so the scheduler can route them through escalation rather than treating
// them as ordinary task failures.
type SandboxExecutor interface {
	Execute(ctx context.Context, code string, args map[string]any, sandbox dag.SandboxConfig) (any, error)
}

// CapabilityExecutor dispatches a capability task, which may recursively
// invoke the scheduler against an inner DAG; that recursion is opaque to
// this package (spec §4.1 step 4: "this recursion is opaque to the
// scheduler").
type CapabilityExecutor interface {
	Execute(ctx context.Context, task dag.Task, args map[string]any) (any, error)
}

// ToolExecutorFunc adapts a plain function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, tool string, args map[string]any) (any, error)

func (f ToolExecutorFunc) Execute(ctx context.Context, tool string, args map[string]any) (any, error) {
	return f(ctx, tool, args)
}

// SandboxExecutorFunc adapts a plain function to SandboxExecutor.
type SandboxExecutorFunc func(ctx context.Context, code string, args map[string]any, sandbox dag.SandboxConfig) (any, error)

func (f SandboxExecutorFunc) Execute(ctx context.Context, code string, args map[string]any, sandbox dag.SandboxConfig) (any, error) {
	return f(ctx, code, args, sandbox)
}

// CapabilityExecutorFunc adapts a plain function to CapabilityExecutor.
type CapabilityExecutorFunc func(ctx context.Context, task dag.Task, args map[string]any) (any, error)

func (f CapabilityExecutorFunc) Execute(ctx context.Context, task dag.Task, args map[string]any) (any, error) {
	return f(ctx, task, args)
}
