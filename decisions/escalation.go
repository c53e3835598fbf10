package decisions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/events"
)

// Escalation is one task's permission-denial surfaced at a layer boundary
// (spec §4.4 "deferred permission escalation").
type Escalation struct {
	TaskID             string
	CurrentSet         []string
	RequestedSet       []string
	RequestedOperation string
	SuggestedAlt       string
}

// EscalationResult is the resolved outcome for one Escalation: Approved
// means the scheduler should re-execute the task under RequestedSet;
// otherwise it must be recorded as an error (spec §4.4 steps 4-5).
type EscalationResult struct {
	TaskID   string
	Approved bool
}

// RunEscalations implements spec §4.4's deferred permission escalation
// sequence: every pending escalation's decision_required event is
// published before any are awaited, so an out-of-process approver is
// guaranteed to see the full batch before this call blocks on the first
// one — the sequencing that eliminates the deadlock the spec calls out.
func (g *Gates) RunEscalations(ctx context.Context, workflowID string, layerIndex int, pending []Escalation) []EscalationResult {
	if len(pending) == 0 {
		return nil
	}

	decisionIDs := make([]string, len(pending))
	for i, esc := range pending {
		decisionIDs[i] = uuid.NewString()
		g.Stream.Publish(events.Event{
			Kind:         events.KindDecisionRequired,
			WorkflowID:   workflowID,
			LayerIndex:   layerIndex,
			TaskID:       esc.TaskID,
			DecisionID:   decisionIDs[i],
			DecisionKind: "hil",
			Reason:       "permission escalation: " + esc.RequestedOperation,
			Options:      []string{"approve", "reject"},
		})
	}

	results := make([]EscalationResult, len(pending))
	for i, esc := range pending {
		cmd, ok := g.Resolver.Await(ctx, decisionIDs[i], g.HILTimeout)
		approved := ok && cmd.Resolution == "approve"
		resolution := "timeout"
		if ok {
			resolution = cmd.Resolution
		}
		g.Stream.Publish(events.Event{
			Kind:       events.KindDecisionResolved,
			WorkflowID: workflowID,
			TaskID:     esc.TaskID,
			DecisionID: decisionIDs[i],
			Resolution: resolution,
		})
		results[i] = EscalationResult{TaskID: esc.TaskID, Approved: approved}
	}
	return results
}

// Classify inspects a SandboxError and builds the Escalation context the
// spec names: task id, current/requested permission set, operation kind,
// and a suggested safer alternative.
func Classify(taskID string, sandboxErr *dag.SandboxError) Escalation {
	return Escalation{
		TaskID:             taskID,
		CurrentSet:         sandboxErr.CurrentSet,
		RequestedSet:       sandboxErr.RequestedSet,
		RequestedOperation: sandboxErr.RequestedOperation,
		SuggestedAlt:       suggestAlternative(sandboxErr.RequestedOperation),
	}
}

func suggestAlternative(op string) string {
	switch op {
	case "net":
		return "restrict to an allow-listed host set instead of unrestricted network access"
	case "run":
		return "use a read-only code_execution sandbox without subprocess spawning"
	case "ffi":
		return "prefer a pure-Go implementation over cgo/FFI"
	case "write":
		return "write to a scoped temp directory instead of the requested path"
	case "env":
		return "pass required values as explicit arguments instead of full environment access"
	default:
		return "narrow the requested permission set to only what the task declares it needs"
	}
}

// EscalationTimeout is a 300-second await budget for one escalation.
// RunEscalations does not read it: once all decision_required events for
// the batch are published, it waits up to Gates.HILTimeout for each
// escalation in turn.
const EscalationTimeout = 300 * time.Second
