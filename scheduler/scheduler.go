package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/smallnest/dagrag/checkpoint"
	"github.com/smallnest/dagrag/commands"
	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/decisions"
	"github.com/smallnest/dagrag/events"
	"github.com/smallnest/dagrag/internal/obslog"
	"github.com/smallnest/dagrag/ratelimit"
	"github.com/smallnest/dagrag/state"
)

// Planner is the external replanner invoked on an AIL replan_dag response
// (spec §4.4: "call the external planner with {completed_tasks,
// new_requirement, available_context}"). Not implemented by this module.
type Planner interface {
	Replan(ctx context.Context, completed []dag.TaskResult, availableContext map[string]any) (*dag.DAG, error)
}

// Scheduler implements spec §4.1-§4.5's C1 contract: Kahn-layered,
// settle-all parallel dispatch over a DAG, producing an ordered event
// sequence and a terminal WorkflowState. Grounded on the teacher's
// graph/state_graph.go executeNodesParallel orchestration loop.
type Scheduler struct {
	Stream      *events.Stream
	Queue       *commands.Queue
	Checkpoints checkpoint.Store
	Limiter     *ratelimit.Limiter
	Gates       *decisions.Gates
	Planner     Planner
	Log         obslog.Logger

	ToolExecutor       ToolExecutor
	SandboxExecutor    SandboxExecutor
	CapabilityExecutor CapabilityExecutor

	MaxConcurrency      int64 // 0 = unbounded
	TaskTimeout         time.Duration
	CheckpointRetention int

	breakers *circuitBreakerRegistry
	resolver *queueResolver
}

// New builds a Scheduler and, when Gates is set, points Gates.Resolver at a
// resolver over the same queue passed here, so AIL/HIL/escalation awaits
// and the pre-dispatch pause/cancel drain share one FIFO.
func New(s *Scheduler) *Scheduler {
	if s.TaskTimeout <= 0 {
		s.TaskTimeout = 30 * time.Second
	}
	if s.CheckpointRetention <= 0 {
		s.CheckpointRetention = checkpoint.DefaultRetention
	}
	if s.Log == nil {
		s.Log = obslog.NoOp{}
	}
	s.breakers = newCircuitBreakerRegistry(DefaultCircuitBreakerConfig)
	s.resolver = newQueueResolver(s.Queue)
	if s.Gates != nil {
		s.Gates.Resolver = s.resolver
	}
	return s
}

// Result is the terminal summary of one Run (spec §4.1 "Speedup reporting").
type Result struct {
	Speedup     float64
	FinalLayer  int
	Aborted     bool
	ReplanCount int // number of replan_dag resolutions applied (spec §8 E2E scenario 3)
}

// Run drives wf through d's topological layers starting at startLayer
// (0 for a fresh execution, completed_count for a resumed one), applying
// decision gates at every layer boundary, until the DAG is exhausted or a
// fatal condition (abort, timeout, cancel) ends the run early.
func (s *Scheduler) Run(ctx context.Context, d *dag.DAG, wf *state.WorkflowState, startLayer int) (Result, error) {
	s.Stream.Publish(events.Event{Kind: events.KindWorkflowStarted, WorkflowID: wf.WorkflowID, Timestamp: time.Now()})

	layers, err := d.Topo()
	if err != nil {
		s.publishFailure(wf.WorkflowID, err)
		return Result{}, err
	}

	var totalTaskMS int64
	wallStart := time.Now()
	layerIndex := startLayer

	for layerIndex < len(layers) {
		layerIDs := layers[layerIndex]

		if paused, pausedResult, pauseErr := s.drainPreDispatch(wf); pauseErr != nil {
			s.publishFailure(wf.WorkflowID, pauseErr)
			return Result{}, pauseErr
		} else if paused {
			return pausedResult, nil
		}

		s.Stream.Publish(events.Event{
			Kind: events.KindLayerStarted, WorkflowID: wf.WorkflowID, Timestamp: time.Now(),
			LayerIndex: layerIndex, TaskIDs: layerIDs,
		})

		results, escalations, warnings, err := s.dispatchLayer(ctx, d, wf, layerIndex, layerIDs)
		if err != nil {
			s.publishFailure(wf.WorkflowID, err)
			return Result{}, err
		}

		if len(escalations) > 0 {
			s.resolveEscalations(ctx, wf.WorkflowID, layerIndex, d, wf, results, escalations)
		}

		for _, w := range warnings {
			wf.ApplyMessages(state.Message{Role: "scheduler", Content: w})
		}

		layerHadError := false
		for _, r := range results {
			totalTaskMS += r.ExecutionTimeMS

			// task_completed/task_error is published here, after
			// escalation resolution above has settled every index, so the
			// event's task id and status always reflect the real outcome
			// (spec §8 invariant 4: exactly one task_complete/error per
			// task_start).
			kind := events.KindTaskCompleted
			errMsg := ""
			if r.Status == dag.StatusError {
				layerHadError = true
				kind = events.KindTaskError
				errMsg = r.Error
			}
			s.Stream.Publish(events.Event{
				Kind: kind, WorkflowID: wf.WorkflowID, Timestamp: time.Now(),
				LayerIndex: layerIndex, TaskID: r.TaskID, Result: r, Error: errMsg,
			})

			counts := wf.ApplyTaskUpsert(r)
			s.Stream.Publish(events.Event{
				Kind: events.KindStateUpdated, WorkflowID: wf.WorkflowID, Timestamp: time.Now(),
				LayerIndex: layerIndex, TaskID: r.TaskID, Result: counts,
			})
		}
		wf.CurrentLayer = layerIndex

		s.Stream.Publish(events.Event{
			Kind: events.KindLayerCompleted, WorkflowID: wf.WorkflowID, Timestamp: time.Now(),
			LayerIndex: layerIndex, TaskIDs: layerIDs, Result: results,
		})

		s.persistCheckpoint(ctx, wf, layerIndex)

		replanFn := func(ctx context.Context) (*dag.DAG, error) {
			if s.Planner == nil {
				return nil, fmt.Errorf("scheduler: replan_dag requested but no Planner configured")
			}
			return s.Planner.Replan(ctx, wf.Tasks, wf.Context)
		}
		ailOutcome, err := s.Gates.RunAIL(ctx, wf.WorkflowID, layerIndex, layerHadError, d, replanFn)
		if err != nil {
			s.publishFailure(wf.WorkflowID, err)
			return Result{}, err
		}
		if ailOutcome.Action == "replan_dag" {
			if ailOutcome.NoopReplan {
				// The planner returned a structurally identical DAG: spec
				// SPEC_FULL's Open Question resolution surfaces this as a
				// distinct event plus a WorkflowState counter, rather than
				// silently discarding it or treating it as a real replan.
				counts := wf.ApplyNoopReplan()
				s.Stream.Publish(events.Event{
					Kind: events.KindReplanNoop, WorkflowID: wf.WorkflowID, Timestamp: time.Now(),
					LayerIndex: layerIndex, Result: counts,
				})
			} else if ailOutcome.NewDAG != nil {
				d = ailOutcome.NewDAG
				layers, err = d.Topo()
				if err != nil {
					s.publishFailure(wf.WorkflowID, err)
					return Result{}, err
				}
				layerIndex = 0
				continue
			}
		}

		hilOutcome, err := s.Gates.RunHIL(ctx, wf.WorkflowID, layerIndex, taskMetadataFor(d, layerIDs))
		_ = hilOutcome
		if err != nil {
			s.publishFailure(wf.WorkflowID, err)
			return Result{}, err
		}

		layerIndex++
	}

	wallMS := time.Since(wallStart).Milliseconds()
	speedup := 1.0
	if wallMS > 0 {
		speedup = float64(totalTaskMS) / float64(wallMS)
	}
	result := Result{Speedup: speedup, FinalLayer: layerIndex, ReplanCount: s.Gates.ReplanCount()}
	s.Stream.Publish(events.Event{Kind: events.KindWorkflowCompleted, WorkflowID: wf.WorkflowID, Timestamp: time.Now(), Result: result})
	return result, nil
}

// drainPreDispatch drains the queue for cancel/pause/update_state
// immediately before layer dispatch (spec §4.2). It returns (true, result,
// nil) when the run should stop without error (paused). update_state is
// applied here rather than directly by Executor.UpdateState so the
// WorkflowState only ever has one writer: this control-plane goroutine
// (spec §5 "Shared resources").
func (s *Scheduler) drainPreDispatch(wf *state.WorkflowState) (bool, Result, error) {
	for _, cmd := range s.Queue.Drain() {
		switch cmd.Kind {
		case commands.KindCancel:
			return false, Result{}, &ErrWorkflowAborted{Reason: "cancelled"}
		case commands.KindPause:
			s.Stream.Publish(events.Event{Kind: events.KindWorkflowPaused, WorkflowID: wf.WorkflowID, Timestamp: time.Now(), Reason: cmd.Reason})
			return true, Result{Aborted: true}, nil
		case commands.KindResolveDecision:
			// Not ours to consume here; put it back for the gate drain point.
			_ = s.Queue.Enqueue(cmd)
		case commands.KindUpdateState:
			counts := wf.ApplyContext(cmd.Patch)
			s.Stream.Publish(events.Event{Kind: events.KindStateUpdated, WorkflowID: wf.WorkflowID, Timestamp: time.Now(), Result: counts})
		case commands.KindResume:
			// No-op while already running; resume only has meaning against a
			// paused/stopped executor (handled at the Executor layer).
		}
	}
	return false, Result{}, nil
}

type pendingEscalation struct {
	index int
	task  dag.Task
	args  map[string]any
	esc   decisions.Escalation
}

// dispatchLayer runs every task in layerIDs concurrently with settle-all
// semantics, bounded by MaxConcurrency (spec §4.1 "Parallel dispatch per
// layer"). Escalated permission denials are returned separately rather than
// recorded as results, per step 5's deferred-escalation contract.
func (s *Scheduler) dispatchLayer(ctx context.Context, d *dag.DAG, wf *state.WorkflowState, layerIndex int, layerIDs []string) ([]dag.TaskResult, []pendingEscalation, []string, error) {
	results := make([]dag.TaskResult, len(layerIDs))
	allWarnings := make([][]string, len(layerIDs))
	var (
		mu          sync.Mutex
		escalations []pendingEscalation
	)

	var sem *semaphore.Weighted
	if s.MaxConcurrency > 0 {
		sem = semaphore.NewWeighted(s.MaxConcurrency)
	}

	resolver := &dag.Resolver{ResultFor: wf.ResultFor}
	g, gctx := errgroup.WithContext(ctx)

	for i, id := range layerIDs {
		i, id := i, id
		task, ok := d.Task(id)
		if !ok {
			return nil, nil, nil, fmt.Errorf("scheduler: layer references unknown task %s", id)
		}

		s.Stream.Publish(events.Event{Kind: events.KindTaskStarted, WorkflowID: wf.WorkflowID, Timestamp: time.Now(), LayerIndex: layerIndex, TaskID: id})

		g.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
			}

			result, esc, args, warnings := s.executeTask(gctx, task, resolver)
			allWarnings[i] = warnings
			if esc != nil {
				mu.Lock()
				escalations = append(escalations, pendingEscalation{index: i, task: task, args: args, esc: *esc})
				mu.Unlock()
				return nil
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	// task_completed/task_error is NOT published here: escalated tasks
	// (index reserved in escalations) still have a zero-valued result at
	// this point, and the real outcome only exists once the caller runs
	// resolveEscalations. The caller publishes those events once results
	// is final for every index.
	var flatWarnings []string
	for _, w := range allWarnings {
		flatWarnings = append(flatWarnings, w...)
	}

	return results, escalations, flatWarnings, nil
}

// executeTask resolves arguments, checks dependency outcomes, acquires a
// rate-limit slot, and dispatches a single task (spec §4.1 steps 1-5). A
// detected permission denial is returned via esc instead of result.
func (s *Scheduler) executeTask(ctx context.Context, task dag.Task, resolver *dag.Resolver) (result dag.TaskResult, esc *decisions.Escalation, args map[string]any, warnings []string) {
	started := time.Now()

	for _, dep := range task.DependsOn {
		depResult, ok := resolver.ResultFor(dep)
		if ok && depResult.Status == dag.StatusError {
			return dag.TaskResult{
				TaskID: task.ID, Status: dag.StatusError,
				Error:           (&ErrDependencyFailed{TaskID: task.ID, DepID: dep}).Error(),
				ExecutionTimeMS: time.Since(started).Milliseconds(),
			}, nil, nil, nil
		}
	}

	resolvedArgs, warnings, err := resolver.ResolveArguments(task.Arguments)
	if err != nil {
		return dag.TaskResult{TaskID: task.ID, Status: dag.StatusError, Error: err.Error(), ExecutionTimeMS: time.Since(started).Milliseconds()}, nil, nil, warnings
	}

	if err := s.Limiter.Acquire(ctx, task.Tool); err != nil {
		return dag.TaskResult{TaskID: task.ID, Status: dag.StatusError, Error: err.Error(), ExecutionTimeMS: time.Since(started).Milliseconds()}, nil, resolvedArgs, warnings
	}

	out, dispatchErr := s.dispatchOnce(ctx, task, resolvedArgs)
	elapsed := time.Since(started).Milliseconds()

	if dispatchErr != nil {
		if sbErr, ok := dispatchErr.(*dag.SandboxError); ok && sbErr.Code == dag.SandboxErrPermissionDenied {
			e := decisions.Classify(task.ID, sbErr)
			return dag.TaskResult{}, &e, resolvedArgs, warnings
		}
		return dag.TaskResult{TaskID: task.ID, Status: dag.StatusError, Error: dispatchErr.Error(), ExecutionTimeMS: elapsed}, nil, resolvedArgs, warnings
	}

	return dag.TaskResult{TaskID: task.ID, Status: dag.StatusSuccess, Output: out, ExecutionTimeMS: elapsed}, nil, resolvedArgs, warnings
}

func (s *Scheduler) dispatchOnce(ctx context.Context, task dag.Task, args map[string]any) (any, error) {
	dctx, cancel := context.WithTimeout(ctx, s.TaskTimeout)
	defer cancel()

	switch task.Kind {
	case dag.KindMCPTool:
		cb := s.breakers.forTool(task.Tool)
		if err := cb.allow(task.Tool); err != nil {
			s.Stream.Publish(events.Event{Kind: events.KindTaskWarning, TaskID: task.ID, Reason: err.Error(), Timestamp: time.Now()})
			return nil, err
		}
		out, err := s.ToolExecutor.Execute(dctx, task.Tool, args)
		cb.recordResult(err)
		if dctx.Err() != nil {
			return nil, &ErrTimeout{TaskID: task.ID, Budget: s.TaskTimeout.String()}
		}
		return out, err
	case dag.KindCodeExecution:
		var sandbox dag.SandboxConfig
		if task.Sandbox != nil {
			sandbox = *task.Sandbox
		}
		out, err := s.SandboxExecutor.Execute(dctx, task.Code, args, sandbox)
		if dctx.Err() != nil && err == nil {
			return nil, &ErrTimeout{TaskID: task.ID, Budget: s.TaskTimeout.String()}
		}
		return out, err
	case dag.KindCapability:
		return s.CapabilityExecutor.Execute(dctx, task, args)
	default:
		return nil, fmt.Errorf("scheduler: unknown task kind %q", task.Kind)
	}
}

// resolveEscalations runs spec §4.4's deferred permission escalation: the
// layer has already settled, so every decision_required is flushed before
// any is awaited (handled inside Gates.RunEscalations), then approved tasks
// are re-executed under the elevated permission set.
func (s *Scheduler) resolveEscalations(ctx context.Context, workflowID string, layerIndex int, d *dag.DAG, wf *state.WorkflowState, results []dag.TaskResult, pending []pendingEscalation) {
	escs := make([]decisions.Escalation, len(pending))
	for i, p := range pending {
		escs[i] = p.esc
	}

	outcomes := s.Gates.RunEscalations(ctx, workflowID, layerIndex, escs)

	for i, p := range pending {
		approved := i < len(outcomes) && outcomes[i].Approved
		if !approved {
			results[p.index] = dag.TaskResult{TaskID: p.task.ID, Status: dag.StatusError, Error: "permission escalation rejected or timed out"}
			continue
		}

		elevated := p.task
		if elevated.Sandbox == nil {
			elevated.Sandbox = &dag.SandboxConfig{}
		}
		cfg := *elevated.Sandbox
		cfg.Permissions = p.esc.RequestedSet
		elevated.Sandbox = &cfg

		started := time.Now()
		out, err := s.dispatchOnce(ctx, elevated, p.args)
		elapsed := time.Since(started).Milliseconds()
		if err != nil {
			results[p.index] = dag.TaskResult{TaskID: p.task.ID, Status: dag.StatusError, Error: err.Error(), ExecutionTimeMS: elapsed}
			continue
		}
		results[p.index] = dag.TaskResult{TaskID: p.task.ID, Status: dag.StatusSuccess, Output: out, ExecutionTimeMS: elapsed}
	}
}

func (s *Scheduler) persistCheckpoint(ctx context.Context, wf *state.WorkflowState, layerIndex int) {
	cp := &checkpoint.Checkpoint{
		ID:         uuid.NewString(),
		WorkflowID: wf.WorkflowID,
		Timestamp:  time.Now(),
		Layer:      layerIndex,
		State:      cloneState(wf),
	}
	if err := s.Checkpoints.Save(ctx, cp, s.CheckpointRetention); err != nil {
		s.Log.Warn("checkpoint persist failed", "workflow_id", wf.WorkflowID, "layer", layerIndex, "error", err)
		s.Stream.Publish(events.Event{
			Kind: events.KindCheckpointSaved, WorkflowID: wf.WorkflowID, Timestamp: time.Now(),
			LayerIndex: layerIndex, CheckpointID: "failed-" + cp.ID, Error: err.Error(),
		})
		return
	}
	s.Stream.Publish(events.Event{
		Kind: events.KindCheckpointSaved, WorkflowID: wf.WorkflowID, Timestamp: time.Now(),
		LayerIndex: layerIndex, CheckpointID: cp.ID,
	})
}

func (s *Scheduler) publishFailure(workflowID string, err error) {
	s.Stream.Publish(events.Event{Kind: events.KindWorkflowFailed, WorkflowID: workflowID, Timestamp: time.Now(), Error: err.Error()})
}

// cloneState deep-copies a WorkflowState via a JSON round-trip so a
// checkpoint snapshot is immune to later in-place reducer mutation.
func cloneState(wf *state.WorkflowState) *state.WorkflowState {
	b, err := json.Marshal(wf)
	if err != nil {
		return wf
	}
	clone := &state.WorkflowState{}
	if err := json.Unmarshal(b, clone); err != nil {
		return wf
	}
	return clone
}

func taskMetadataFor(d *dag.DAG, ids []string) []decisions.TaskMetadata {
	out := make([]decisions.TaskMetadata, 0, len(ids))
	for _, id := range ids {
		if t, ok := d.Task(id); ok {
			out = append(out, decisions.TaskMetadata{TaskID: t.ID, HasSideEffects: t.HasSideEffects})
		}
	}
	return out
}
