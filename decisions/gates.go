package decisions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/dagrag/commands"
	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/events"
	"github.com/smallnest/dagrag/internal/obslog"
)

// MaxReplans bounds how many times one workflow may replan_dag before the
// AIL loop refuses further replans (spec §4.4 "MAX_REPLANS = a constant,
// e.g. 3").
const MaxReplans = 3

// AILTrigger and HILTrigger name the configured trigger modes (spec §4.4).
type AILTrigger string

const (
	AILPerLayer AILTrigger = "per_layer"
	AILOnError  AILTrigger = "on_error"
	AILManual   AILTrigger = "manual"
)

type HILTrigger string

const (
	HILAlways       HILTrigger = "always"
	HILCriticalOnly HILTrigger = "critical_only"
	HILNever        HILTrigger = "never"
)

// Resolver drains commands matching already-issued decision ids, blocking
// until a match arrives or ctx/timeout expires. The scheduler supplies a
// concrete implementation backed by its commands.Queue so the gates in
// this package stay agnostic of how draining is scheduled relative to
// other layer-boundary work.
type Resolver interface {
	// Await blocks for a command resolving decisionID, or returns
	// ok=false on timeout. It must never be called while other tasks in
	// the layer are still in flight (spec §4.4 "no gate may be awaited
	// while still inside a parallel dispatch").
	Await(ctx context.Context, decisionID string, timeout time.Duration) (commands.Command, bool)
}

// Gates bundles the dependencies the AIL/HIL loops need: the event stream
// to announce decisions on, a Resolver to await responses, and a Policy
// for the critical_only/dangerous-operation predicates.
type Gates struct {
	Stream   *events.Stream
	Resolver Resolver
	Policy   *Policy
	Log      obslog.Logger

	AIL        AILTrigger
	HIL        HILTrigger
	AILTimeout time.Duration
	HILTimeout time.Duration

	replanCount int
}

// AILOutcome is the resolved result of one AIL gate invocation.
type AILOutcome struct {
	Action     string   // "continue" | "abort" | "replan_dag"
	Reason     string
	NewDAG     *dag.DAG // populated only when Action == "replan_dag" and the plan changed
	NoopReplan bool     // replan returned same task count, per Open Question resolution
}

// RunAIL evaluates the AIL trigger matrix for the layer just completed and,
// if triggered, emits decision_required and awaits a response (spec §4.4).
func (g *Gates) RunAIL(ctx context.Context, workflowID string, layerIndex int, layerHadError bool, currentDAG *dag.DAG, replan func(ctx context.Context) (*dag.DAG, error)) (AILOutcome, error) {
	if !g.triggered(layerHadError) {
		return AILOutcome{Action: "continue"}, nil
	}

	decisionID := uuid.NewString()
	g.Stream.Publish(events.Event{
		Kind:         events.KindDecisionRequired,
		WorkflowID:   workflowID,
		LayerIndex:   layerIndex,
		DecisionID:   decisionID,
		DecisionKind: "ail",
		Reason:       "layer boundary AIL gate",
	})

	cmd, ok := g.Resolver.Await(ctx, decisionID, g.AILTimeout)
	if !ok {
		// AIL timeout is treated as continue (spec §4.4: "on continue (or
		// timeout: treated as continue), proceed").
		g.Stream.Publish(events.Event{Kind: events.KindDecisionResolved, WorkflowID: workflowID, DecisionID: decisionID, Resolution: "continue (timeout)"})
		return AILOutcome{Action: "continue", Reason: "timeout"}, nil
	}

	g.Stream.Publish(events.Event{Kind: events.KindDecisionResolved, WorkflowID: workflowID, DecisionID: decisionID, Resolution: cmd.Resolution})

	switch cmd.Resolution {
	case "abort":
		return AILOutcome{Action: "abort", Reason: cmd.Reason}, &ErrAbortedByAgent{Reason: cmd.Reason}
	case "replan_dag":
		if g.replanCount >= MaxReplans {
			return AILOutcome{}, &ErrMaxReplansExceeded{Limit: MaxReplans}
		}
		newDAG, err := replan(ctx)
		if err != nil {
			return AILOutcome{}, err
		}
		g.replanCount++
		if currentDAG != nil && len(newDAG.Tasks) == len(currentDAG.Tasks) {
			// Same task count, no structural change: surfaced as a distinct
			// replan_noop outcome rather than silently replacing the DAG
			// (resolved Open Question, see DESIGN.md).
			return AILOutcome{Action: "replan_dag", NoopReplan: true}, nil
		}
		return AILOutcome{Action: "replan_dag", NewDAG: newDAG}, nil
	default:
		return AILOutcome{Action: "continue"}, nil
	}
}

// ReplanCount returns how many replan_dag resolutions this Gates instance
// has applied so far (spec §8 E2E scenario 3's observable `replan_count`),
// including no-op replans — MaxReplans bounds attempts, not just
// structural changes.
func (g *Gates) ReplanCount() int {
	return g.replanCount
}

func (g *Gates) triggered(layerHadError bool) bool {
	switch g.AIL {
	case AILPerLayer:
		return true
	case AILOnError:
		return layerHadError
	default: // AILManual or unset
		return false
	}
}

// HILOutcome is the resolved result of one HIL gate invocation.
type HILOutcome struct {
	Approved bool
	Feedback string
}

// RunHIL evaluates the HIL trigger matrix and, if triggered, emits
// decision_required and awaits approval_response (spec §4.4). tasks is the
// metadata for every task in the layer just completed, used by
// critical_only.
func (g *Gates) RunHIL(ctx context.Context, workflowID string, layerIndex int, tasks []TaskMetadata) (HILOutcome, error) {
	trigger, err := g.hilTriggered(tasks)
	if err != nil {
		return HILOutcome{}, err
	}
	if !trigger {
		return HILOutcome{Approved: true}, nil
	}

	decisionID := uuid.NewString()
	g.Stream.Publish(events.Event{
		Kind:         events.KindDecisionRequired,
		WorkflowID:   workflowID,
		LayerIndex:   layerIndex,
		DecisionID:   decisionID,
		DecisionKind: "hil",
		Reason:       "layer boundary HIL gate",
	})

	cmd, ok := g.Resolver.Await(ctx, decisionID, g.HILTimeout)
	if !ok {
		g.Stream.Publish(events.Event{Kind: events.KindDecisionResolved, WorkflowID: workflowID, DecisionID: decisionID, Resolution: "timeout"})
		return HILOutcome{}, &ErrDecisionTimeout{DecisionID: decisionID, Kind: "hil"}
	}

	g.Stream.Publish(events.Event{Kind: events.KindDecisionResolved, WorkflowID: workflowID, DecisionID: decisionID, Resolution: cmd.Resolution})

	if cmd.Resolution != "approve" {
		return HILOutcome{Approved: false, Feedback: cmd.Reason}, &ErrAbortedByHuman{Feedback: cmd.Reason}
	}
	return HILOutcome{Approved: true}, nil
}

func (g *Gates) hilTriggered(tasks []TaskMetadata) (bool, error) {
	switch g.HIL {
	case HILAlways:
		return true, nil
	case HILCriticalOnly:
		for _, t := range tasks {
			critical, err := g.Policy.IsCritical(t)
			if err != nil {
				return false, err
			}
			if critical {
				return true, nil
			}
		}
		return false, nil
	default: // HILNever or unset
		return false, nil
	}
}
