// Package executor implements the spec §6 consumer-facing API: execute,
// execute_stream, resume_from_checkpoint, enqueue_command, get_state, and
// update_state, built on top of the scheduler package's layer-dispatch
// engine. Grounded on the teacher's own top-level Graph.Invoke/Graph.Stream
// split (graph/state_graph.go), generalized from node-graph terms to the
// spec's DAG/WorkflowState terms.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smallnest/dagrag/checkpoint"
	"github.com/smallnest/dagrag/commands"
	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/decisions"
	"github.com/smallnest/dagrag/events"
	"github.com/smallnest/dagrag/scheduler"
	"github.com/smallnest/dagrag/state"
)

// DAGExecutionResult is the terminal outcome of the non-interactive
// execute() path (spec §6).
type DAGExecutionResult struct {
	WorkflowID          string
	Success             bool
	State               *state.WorkflowState
	Speedup             float64
	RequiresApproval    bool
	ApprovalDescription string
	Error               string
}

// StreamResult is delivered on the result channel once a streamed or
// resumed run finishes, alongside the event channel the caller already
// pulls from (the "lazy sequence<ExecutionEvent> + terminal WorkflowState"
// contract of spec §6).
type StreamResult struct {
	Result scheduler.Result
	State  *state.WorkflowState
	Err    error
}

// Executor wraps one scheduler.Scheduler with the external operations
// consumers call. A single Executor runs one workflow at a time; callers
// wanting concurrent workflows construct one Executor (and one
// events.Stream/commands.Queue) per workflow.
type Executor struct {
	Scheduler   *scheduler.Scheduler
	Checkpoints checkpoint.Store

	mu      sync.RWMutex
	current *state.WorkflowState
}

// New constructs an Executor around an already-wired Scheduler.
func New(sched *scheduler.Scheduler, checkpoints checkpoint.Store) *Executor {
	return &Executor{Scheduler: sched, Checkpoints: checkpoints}
}

func (e *Executor) setCurrent(wf *state.WorkflowState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = wf
}

// GetState returns a snapshot pointer to the most recently tracked
// WorkflowState (spec §6 get_state()). Callers must not mutate it; use
// UpdateState for mutation.
func (e *Executor) GetState() (*state.WorkflowState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil, errors.New("executor: no workflow has been started")
	}
	return e.current, nil
}

// UpdateState injects a context patch (spec §6 update_state(update)). The
// patch is enqueued as an update_state command and applied by the
// scheduler's control-plane goroutine at the next pre-dispatch drain point,
// keeping WorkflowState single-writer even while a run is in flight.
func (e *Executor) UpdateState(patch map[string]any) error {
	return e.Scheduler.Queue.Enqueue(commands.Command{Kind: commands.KindUpdateState, Patch: patch})
}

// EnqueueCommand pushes an external command (spec §6 enqueue_command(cmd)).
func (e *Executor) EnqueueCommand(cmd commands.Command) error {
	return e.Scheduler.Queue.Enqueue(cmd)
}

// Execute runs d to completion non-interactively (spec §6 execute(dag)).
func (e *Executor) Execute(ctx context.Context, d *dag.DAG, workflowID string) (DAGExecutionResult, error) {
	wf := state.New(workflowID)
	e.setCurrent(wf)

	result, err := e.Scheduler.Run(ctx, d, wf, 0)
	if err == nil {
		return DAGExecutionResult{WorkflowID: workflowID, Success: true, State: wf, Speedup: result.Speedup}, nil
	}

	var humanErr *decisions.ErrAbortedByHuman
	var agentErr *decisions.ErrAbortedByAgent
	var timeoutErr *decisions.ErrDecisionTimeout
	if errors.As(err, &humanErr) || errors.As(err, &agentErr) || errors.As(err, &timeoutErr) {
		return DAGExecutionResult{
			WorkflowID:          workflowID,
			Success:             false,
			State:               wf,
			RequiresApproval:    true,
			ApprovalDescription: fmt.Sprintf("workflow requires interactive approval: %s", err.Error()),
		}, nil
	}

	return DAGExecutionResult{WorkflowID: workflowID, Success: false, State: wf, Error: err.Error()}, err
}

// ExecuteStream runs d to completion, returning the ordered event channel
// immediately and delivering the terminal outcome on the returned result
// channel once the run ends (spec §6 execute_stream: "lazy sequence +
// terminal WorkflowState"). The caller owns draining both channels.
func (e *Executor) ExecuteStream(ctx context.Context, d *dag.DAG, workflowID string) (<-chan events.Event, <-chan StreamResult) {
	wf := state.New(workflowID)
	e.setCurrent(wf)
	return e.runStreamed(ctx, d, wf, 0)
}

// ResumeFromCheckpoint restores a checkpointed WorkflowState, re-topo-sorts
// d, skips every already-completed layer, and continues streaming from the
// next one (spec §4.3 Resume). Decision gates run on every remaining layer
// exactly as in a fresh execution — no bypass.
func (e *Executor) ResumeFromCheckpoint(ctx context.Context, d *dag.DAG, checkpointID string) (<-chan events.Event, <-chan StreamResult, error) {
	cp, err := e.Checkpoints.Load(ctx, checkpointID)
	if err != nil {
		return nil, nil, err
	}

	layers, err := d.Topo()
	if err != nil {
		return nil, nil, err
	}

	completedCount := cp.Layer + 1
	if completedCount > len(layers) {
		completedCount = len(layers)
	}

	wf := cp.State
	e.setCurrent(wf)

	evCh, resCh := e.runStreamed(ctx, d, wf, completedCount)
	return evCh, resCh, nil
}

func (e *Executor) runStreamed(ctx context.Context, d *dag.DAG, wf *state.WorkflowState, startLayer int) (<-chan events.Event, <-chan StreamResult) {
	evCh, unsubscribe := e.Scheduler.Stream.Subscribe()
	resCh := make(chan StreamResult, 1)

	go func() {
		defer unsubscribe()
		result, err := e.Scheduler.Run(ctx, d, wf, startLayer)
		resCh <- StreamResult{Result: result, State: wf, Err: err}
		close(resCh)
	}()

	return evCh, resCh
}
