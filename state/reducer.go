package state

import (
	"time"

	"github.com/smallnest/dagrag/dag"
)

// Counts summarizes how many items each reducer actually added, the
// payload a state_updated event reports (spec §4.3).
type Counts struct {
	TasksUpserted     int
	MessagesAdded     int
	DecisionsAdded    int
	ContextKeysMerged int
	NoopReplansAdded  int
}

// ApplyTaskUpsert runs the tasks reducer: last-writer-wins per task_id,
// insertion order mirrors first-seen order for IDs not already present
// (spec §3 invariant: "tasks insertion order mirrors event emission order").
func (s *WorkflowState) ApplyTaskUpsert(result dag.TaskResult) Counts {
	if s.taskIndex == nil {
		s.rebuildIndex()
	}
	if idx, ok := s.taskIndex[result.TaskID]; ok {
		s.Tasks[idx] = result
	} else {
		s.taskIndex[result.TaskID] = len(s.Tasks)
		s.Tasks = append(s.Tasks, result)
	}
	return Counts{TasksUpserted: 1}
}

// ApplyMessages runs the messages reducer: append-only.
func (s *WorkflowState) ApplyMessages(msgs ...Message) Counts {
	for i := range msgs {
		if msgs[i].Timestamp.IsZero() {
			msgs[i].Timestamp = time.Now()
		}
	}
	s.Messages = append(s.Messages, msgs...)
	return Counts{MessagesAdded: len(msgs)}
}

// ApplyDecisions runs the decisions reducer: append-only. Resolving an
// existing decision is modeled as a distinct, later append carrying the
// resolution, never a mutation of the original entry, preserving the
// append-only invariant.
func (s *WorkflowState) ApplyDecisions(decisions ...Decision) Counts {
	s.Decisions = append(s.Decisions, decisions...)
	return Counts{DecisionsAdded: len(decisions)}
}

// ApplyNoopReplan runs the noop-replan counter reducer: an AIL replan_dag
// response that returned a structurally unchanged DAG still needs to be
// observable (spec's Open Question resolution), so it increments a
// dedicated counter rather than being folded into the task/decision
// reducers above.
func (s *WorkflowState) ApplyNoopReplan() Counts {
	s.NoopReplanCount++
	return Counts{NoopReplansAdded: 1}
}

// ApplyContext runs the context reducer: a shallow merge, overwriting
// existing keys and adding new ones. Reducers never delete (spec §4.3).
func (s *WorkflowState) ApplyContext(patch map[string]any) Counts {
	if s.Context == nil {
		s.Context = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		s.Context[k] = v
	}
	return Counts{ContextKeysMerged: len(patch)}
}
