// Package decisions implements the AIL/HIL decision loops and deferred
// permission escalation of spec §4.4 (C4). Grounded on the teacher's
// interrupt/resume primitives (graph/errors.go's NodeInterrupt,
// graph/context.go's resume-value plumbing) generalized from a single
// node-level interrupt to full layer-boundary gates with a trigger matrix.
package decisions

import "fmt"

// ErrAbortedByAgent is raised when an AIL decision resolves to abort
// (spec §4.4, §7).
type ErrAbortedByAgent struct{ Reason string }

func (e *ErrAbortedByAgent) Error() string { return "workflow aborted by agent: " + e.Reason }

// ErrAbortedByHuman is raised when a HIL approval is rejected (spec §4.4, §7).
type ErrAbortedByHuman struct{ Feedback string }

func (e *ErrAbortedByHuman) Error() string { return "workflow aborted by human: " + e.Feedback }

// ErrDecisionTimeout is raised when a decision gate's await exceeds its
// configured timeout without AIL's "continue on timeout" exemption
// (spec §7: "fatal for workflow").
type ErrDecisionTimeout struct {
	DecisionID string
	Kind       string // "ail" | "hil"
}

func (e *ErrDecisionTimeout) Error() string {
	return fmt.Sprintf("decision %s (%s) timed out", e.DecisionID, e.Kind)
}

// ErrMaxReplansExceeded is raised when an AIL replan_dag response would
// push the replan counter past MaxReplans (spec §4.4 "capped at
// MAX_REPLANS").
type ErrMaxReplansExceeded struct{ Limit int }

func (e *ErrMaxReplansExceeded) Error() string {
	return fmt.Sprintf("replan limit exceeded: %d", e.Limit)
}
