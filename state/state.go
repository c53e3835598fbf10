// Package state implements the authoritative WorkflowState and its
// reducers (spec §3, §4.3 — C3). State is mutated only through pure
// reducer applications so that replaying the same updates against a
// restored checkpoint is deterministic (spec §9 "reducers MUST be pure").
package state

import (
	"time"

	"github.com/smallnest/dagrag/dag"
)

// Decision records a resolved or pending HIL/AIL gate, appended to
// WorkflowState.Decisions by the decisions reducer.
type Decision struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"` // "ail" | "hil"
	LayerIndex int       `json:"layer_index"`
	Reason     string    `json:"reason"`
	Resolution string    `json:"resolution,omitempty"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// Message is an append-only log entry surfaced to observers (progress
// narration, warnings) that is not itself a TaskResult.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState is the authoritative mutable state of an in-flight
// workflow (spec §3). It is built incrementally, layer by layer: Tasks,
// Messages, Decisions, Context and NoopReplanCount change only through the
// reducers in this package, while the scheduler sets CurrentLayer directly.
type WorkflowState struct {
	WorkflowID      string           `json:"workflow_id"`
	CurrentLayer    int              `json:"current_layer"`
	Tasks           []dag.TaskResult `json:"tasks"`
	Messages        []Message        `json:"messages"`
	Decisions       []Decision       `json:"decisions"`
	Context         map[string]any   `json:"context"`
	NoopReplanCount int              `json:"noop_replan_count"`

	taskIndex map[string]int // task_id -> index in Tasks, rebuilt after deserialization
}

// New creates an empty WorkflowState for workflowID.
func New(workflowID string) *WorkflowState {
	return &WorkflowState{
		WorkflowID: workflowID,
		Context:    make(map[string]any),
		taskIndex:  make(map[string]int),
	}
}

// rebuildIndex reconstructs the task_id -> slice-index map after a state is
// deserialized from a checkpoint, where the unexported index is absent.
func (s *WorkflowState) rebuildIndex() {
	s.taskIndex = make(map[string]int, len(s.Tasks))
	for i, t := range s.Tasks {
		s.taskIndex[t.TaskID] = i
	}
}

// ResultFor implements the lookup signature dag.Resolver.ResultFor expects.
func (s *WorkflowState) ResultFor(taskID string) (dag.TaskResult, bool) {
	if s.taskIndex == nil {
		s.rebuildIndex()
	}
	idx, ok := s.taskIndex[taskID]
	if !ok {
		return dag.TaskResult{}, false
	}
	return s.Tasks[idx], true
}
