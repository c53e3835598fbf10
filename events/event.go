// Package events implements the ordered, backpressured execution event
// stream described in spec §3/§4.2 (C2). A single producer (the scheduler)
// emits events in strict causal order; any number of consumers subscribe to
// the same ordered sequence.
package events

import "time"

// Kind enumerates the execution event variants (spec §3).
type Kind string

const (
	KindWorkflowStarted   Kind = "workflow_started"
	KindLayerStarted      Kind = "layer_started"
	KindTaskStarted       Kind = "task_started"
	KindTaskCompleted     Kind = "task_completed"
	KindTaskError         Kind = "task_error"
	KindLayerCompleted    Kind = "layer_completed"
	KindCheckpointSaved   Kind = "checkpoint_saved"
	KindDecisionRequired  Kind = "decision_required"
	KindDecisionResolved  Kind = "decision_resolved"
	KindWorkflowCompleted Kind = "workflow_completed"
	KindWorkflowFailed    Kind = "workflow_failed"
	KindWorkflowPaused    Kind = "workflow_paused"
	KindStateUpdated      Kind = "state_updated"
	KindTaskWarning       Kind = "task_warning"
	KindReplanNoop        Kind = "replan_noop"
)

// Event is the tagged-union execution event. Only the fields relevant to
// Kind are populated; Go has no sum types, so this mirrors the teacher's
// pattern of a flat struct with a discriminant field (grounded on
// graph/streaming.go's StreamEvent).
type Event struct {
	Kind       Kind      `json:"kind"`
	WorkflowID string    `json:"workflow_id"`
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`

	LayerIndex int      `json:"layer_index,omitempty"`
	TaskIDs    []string `json:"task_ids,omitempty"`

	TaskID string `json:"task_id,omitempty"`
	Result any    `json:"result,omitempty"`

	DecisionID   string   `json:"decision_id,omitempty"`
	DecisionKind string   `json:"decision_kind,omitempty"` // "ail" | "hil"
	Reason       string   `json:"reason,omitempty"`
	Options      []string `json:"options,omitempty"`
	Resolution   string   `json:"resolution,omitempty"`

	CheckpointID string `json:"checkpoint_id,omitempty"`

	Error string `json:"error,omitempty"`
}
