package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/dagrag/checkpoint/memory"
	"github.com/smallnest/dagrag/commands"
	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/decisions"
	"github.com/smallnest/dagrag/events"
	"github.com/smallnest/dagrag/ratelimit"
	"github.com/smallnest/dagrag/state"
)

func newTestScheduler(t *testing.T, toolExec ToolExecutor) (*Scheduler, *events.Stream) {
	t.Helper()
	stream := events.NewStream()
	policy, err := decisions.NewPolicy("", "")
	require.NoError(t, err)

	queue := commands.NewQueue()
	gates := &decisions.Gates{
		Stream:     stream,
		Policy:     policy,
		AIL:        decisions.AILManual,
		HIL:        decisions.HILNever,
		AILTimeout: time.Second,
		HILTimeout: time.Second,
	}

	sched := New(&Scheduler{
		Stream:          stream,
		Queue:           queue,
		Checkpoints:     memory.New(),
		Limiter:         ratelimit.New(ratelimit.Bucket{Requests: 1000, Per: time.Second}),
		Gates:           gates,
		ToolExecutor:    toolExec,
		SandboxExecutor: SandboxExecutorFunc(func(ctx context.Context, code string, args map[string]any, sandbox dag.SandboxConfig) (any, error) {
			return nil, nil
		}),
		TaskTimeout: 2 * time.Second,
	})
	return sched, stream
}

func drainEvents(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestRunExecutesLinearDAGAndCompletes(t *testing.T) {
	calls := map[string]int{}
	sched, stream := newTestScheduler(t, ToolExecutorFunc(func(ctx context.Context, tool string, args map[string]any) (any, error) {
		calls[tool]++
		return map[string]any{"ok": true}, nil
	}))
	ch, unsub := stream.Subscribe()
	defer unsub()

	d, err := dag.New([]dag.Task{
		{ID: "task_A", Tool: "search", Kind: dag.KindMCPTool},
		{ID: "task_B", Tool: "summarize", Kind: dag.KindMCPTool, DependsOn: []string{"task_A"}},
	})
	require.NoError(t, err)

	wf := state.New("wf1")
	result, err := sched.Run(context.Background(), d, wf, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FinalLayer)
	assert.Equal(t, 1, calls["search"])
	assert.Equal(t, 1, calls["summarize"])

	taskA, ok := wf.ResultFor("task_A")
	require.True(t, ok)
	assert.Equal(t, dag.StatusSuccess, taskA.Status)

	evs := drainEvents(ch)
	var sawCompleted bool
	for _, e := range evs {
		if e.Kind == events.KindWorkflowCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

func TestRunPropagatesDependencyFailure(t *testing.T) {
	sched, _ := newTestScheduler(t, ToolExecutorFunc(func(ctx context.Context, tool string, args map[string]any) (any, error) {
		if tool == "flaky" {
			return nil, assertErr{"boom"}
		}
		return "ok", nil
	}))

	d, err := dag.New([]dag.Task{
		{ID: "task_A", Tool: "flaky", Kind: dag.KindMCPTool},
		{ID: "task_B", Tool: "downstream", Kind: dag.KindMCPTool, DependsOn: []string{"task_A"}},
	})
	require.NoError(t, err)

	wf := state.New("wf2")
	_, err = sched.Run(context.Background(), d, wf, 0)
	require.NoError(t, err)

	taskA, _ := wf.ResultFor("task_A")
	assert.Equal(t, dag.StatusError, taskA.Status)

	taskB, _ := wf.ResultFor("task_B")
	assert.Equal(t, dag.StatusError, taskB.Status)
	assert.Contains(t, taskB.Error, "depends on failed task")
}

func TestRunProceedsPastFailedSafeDependency(t *testing.T) {
	sched, _ := newTestScheduler(t, ToolExecutorFunc(func(ctx context.Context, tool string, args map[string]any) (any, error) {
		return "ok", nil
	}))

	d, err := dag.New([]dag.Task{
		{ID: "task_A", Tool: "search", Kind: dag.KindMCPTool},
		{ID: "task_B", Tool: "downstream", Kind: dag.KindMCPTool, DependsOn: []string{"task_A"}},
	})
	require.NoError(t, err)

	wf := state.New("wf3")
	wf.ApplyTaskUpsert(dag.TaskResult{TaskID: "task_A", Status: dag.StatusFailedSafe, Output: nil})

	_, err = sched.Run(context.Background(), d, wf, 1)
	require.NoError(t, err)

	taskB, ok := wf.ResultFor("task_B")
	require.True(t, ok)
	assert.Equal(t, dag.StatusSuccess, taskB.Status)
}

func TestRunHonorsPauseCommandBeforeLayer(t *testing.T) {
	sched, stream := newTestScheduler(t, ToolExecutorFunc(func(ctx context.Context, tool string, args map[string]any) (any, error) {
		return "ok", nil
	}))
	ch, unsub := stream.Subscribe()
	defer unsub()

	require.NoError(t, sched.Queue.Enqueue(commands.Command{Kind: commands.KindPause, Reason: "operator requested"}))

	d, err := dag.New([]dag.Task{{ID: "task_A", Tool: "search", Kind: dag.KindMCPTool}})
	require.NoError(t, err)

	wf := state.New("wf4")
	result, err := sched.Run(context.Background(), d, wf, 0)
	require.NoError(t, err)
	assert.True(t, result.Aborted)

	_, ok := wf.ResultFor("task_A")
	assert.False(t, ok, "paused run must not have dispatched the layer")

	evs := drainEvents(ch)
	var sawPaused bool
	for _, e := range evs {
		if e.Kind == events.KindWorkflowPaused {
			sawPaused = true
		}
	}
	assert.True(t, sawPaused)
}

func TestRunAbortsOnCancelCommand(t *testing.T) {
	sched, _ := newTestScheduler(t, ToolExecutorFunc(func(ctx context.Context, tool string, args map[string]any) (any, error) {
		return "ok", nil
	}))

	require.NoError(t, sched.Queue.Enqueue(commands.Command{Kind: commands.KindCancel}))

	d, err := dag.New([]dag.Task{{ID: "task_A", Tool: "search", Kind: dag.KindMCPTool}})
	require.NoError(t, err)

	wf := state.New("wf5")
	_, err = sched.Run(context.Background(), d, wf, 0)
	require.Error(t, err)
	var abortErr *ErrWorkflowAborted
	assert.ErrorAs(t, err, &abortErr)
}

func TestRunHandlesPermissionEscalationApproval(t *testing.T) {
	sched, stream := newTestScheduler(t, nil)
	sandboxCalls := 0
	sched.SandboxExecutor = SandboxExecutorFunc(func(ctx context.Context, code string, args map[string]any, sandbox dag.SandboxConfig) (any, error) {
		sandboxCalls++
		if len(sandbox.Permissions) == 0 {
			return nil, &dag.SandboxError{
				Code:               dag.SandboxErrPermissionDenied,
				RequestedOperation: "net",
				CurrentSet:         []string{"read"},
				RequestedSet:       []string{"read", "net"},
			}
		}
		return "elevated ok", nil
	})

	resolver := &autoApproveResolver{}
	sched.Gates.Resolver = resolver

	d, err := dag.New([]dag.Task{{ID: "task_A", Kind: dag.KindCodeExecution, Code: "fetch()"}})
	require.NoError(t, err)

	wf := state.New("wf6")

	done := make(chan struct{})
	ch, unsub := stream.Subscribe()
	defer unsub()
	go func() {
		_, err := sched.Run(context.Background(), d, wf, 0)
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not complete")
	}
	drainEvents(ch)

	taskA, ok := wf.ResultFor("task_A")
	require.True(t, ok)
	assert.Equal(t, dag.StatusSuccess, taskA.Status)
	assert.Equal(t, 2, sandboxCalls, "expected one denied attempt and one elevated retry")
}

func TestRunEmitsTaskErrorNotTaskCompletedForFailedTask(t *testing.T) {
	sched, stream := newTestScheduler(t, ToolExecutorFunc(func(ctx context.Context, tool string, args map[string]any) (any, error) {
		return nil, assertErr{"boom"}
	}))
	ch, unsub := stream.Subscribe()
	defer unsub()

	d, err := dag.New([]dag.Task{{ID: "task_A", Tool: "flaky", Kind: dag.KindMCPTool}})
	require.NoError(t, err)

	wf := state.New("wf7")
	_, err = sched.Run(context.Background(), d, wf, 0)
	require.NoError(t, err)

	evs := drainEvents(ch)
	var sawError, sawCompleted bool
	for _, e := range evs {
		if e.TaskID != "task_A" {
			continue
		}
		switch e.Kind {
		case events.KindTaskError:
			sawError = true
			assert.NotEmpty(t, e.Error)
		case events.KindTaskCompleted:
			sawCompleted = true
		}
	}
	assert.True(t, sawError, "expected a task_error event for task_A")
	assert.False(t, sawCompleted, "a failed task must never also emit task_completed")
}

func TestRunEmitsExactlyOneResultEventPerEscalatedTask(t *testing.T) {
	sched, stream := newTestScheduler(t, nil)
	sched.SandboxExecutor = SandboxExecutorFunc(func(ctx context.Context, code string, args map[string]any, sandbox dag.SandboxConfig) (any, error) {
		if len(sandbox.Permissions) == 0 {
			return nil, &dag.SandboxError{
				Code:               dag.SandboxErrPermissionDenied,
				RequestedOperation: "net",
				CurrentSet:         []string{"read"},
				RequestedSet:       []string{"read", "net"},
			}
		}
		return "elevated ok", nil
	})
	sched.Gates.Resolver = &autoApproveResolver{}

	d, err := dag.New([]dag.Task{{ID: "task_A", Kind: dag.KindCodeExecution, Code: "fetch()"}})
	require.NoError(t, err)

	wf := state.New("wf8")
	ch, unsub := stream.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		_, err := sched.Run(context.Background(), d, wf, 0)
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not complete")
	}

	evs := drainEvents(ch)
	var completedCount int
	for _, e := range evs {
		if e.TaskID != "task_A" {
			continue
		}
		if e.Kind == events.KindTaskCompleted {
			completedCount++
			result, ok := e.Result.(dag.TaskResult)
			require.True(t, ok)
			assert.Equal(t, "task_A", result.TaskID, "the event must carry the real escalated task's outcome, not a zero value")
			assert.Equal(t, dag.StatusSuccess, result.Status)
		}
		assert.NotEqual(t, events.KindTaskError, e.Kind, "the approved escalation must not also emit task_error")
	}
	assert.Equal(t, 1, completedCount, "exactly one task_completed must be emitted for the escalated task (spec invariant: one task_start has at most one task_complete/error)")
}

func TestRunSurfacesNoopReplanEventAndCounter(t *testing.T) {
	sched, stream := newTestScheduler(t, ToolExecutorFunc(func(ctx context.Context, tool string, args map[string]any) (any, error) {
		return "ok", nil
	}))
	sched.Gates.AIL = decisions.AILPerLayer
	sched.Gates.Resolver = &replanResolver{}
	sched.Planner = noopPlanner{}

	d, err := dag.New([]dag.Task{{ID: "task_A", Tool: "search", Kind: dag.KindMCPTool}})
	require.NoError(t, err)

	wf := state.New("wf9")
	ch, unsub := stream.Subscribe()
	defer unsub()

	result, err := sched.Run(context.Background(), d, wf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ReplanCount, "replan_count must be observable on the terminal Result")
	assert.Equal(t, 1, wf.NoopReplanCount)

	evs := drainEvents(ch)
	var sawNoop bool
	for _, e := range evs {
		if e.Kind == events.KindReplanNoop {
			sawNoop = true
		}
	}
	assert.True(t, sawNoop, "expected a replan_noop event")
}

// replanResolver answers every decision with replan_dag, once; afterwards
// it falls back to continue so the workflow can finish.
type replanResolver struct {
	used bool
}

func (r *replanResolver) Await(ctx context.Context, decisionID string, timeout time.Duration) (commands.Command, bool) {
	if r.used {
		return commands.Command{Kind: commands.KindResolveDecision, DecisionID: decisionID, Resolution: "continue"}, true
	}
	r.used = true
	return commands.Command{Kind: commands.KindResolveDecision, DecisionID: decisionID, Resolution: "replan_dag"}, true
}

// noopPlanner returns a DAG with the same task count as the original,
// triggering the replan_noop path.
type noopPlanner struct{}

func (noopPlanner) Replan(ctx context.Context, completed []dag.TaskResult, availableContext map[string]any) (*dag.DAG, error) {
	return dag.New([]dag.Task{{ID: "task_A", Tool: "search", Kind: dag.KindMCPTool}})
}

// autoApproveResolver approves every escalation immediately.
type autoApproveResolver struct{}

func (autoApproveResolver) Await(ctx context.Context, decisionID string, timeout time.Duration) (commands.Command, bool) {
	return commands.Command{Kind: commands.KindResolveDecision, DecisionID: decisionID, Resolution: "approve"}, true
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
