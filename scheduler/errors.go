package scheduler

import "fmt"

// ErrTimeout is the recoverable per-task outcome when a tool/sandbox
// dispatch exceeds its wall-clock budget (spec §4.1 step 4).
type ErrTimeout struct {
	TaskID string
	Budget string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("task %s exceeded timeout %s", e.TaskID, e.Budget)
}

// ErrDependencyFailed is the recoverable per-task outcome when a required
// dependency's result status is error (spec §4.1 step 2).
type ErrDependencyFailed struct {
	TaskID  string
	DepID   string
}

func (e *ErrDependencyFailed) Error() string {
	return fmt.Sprintf("task %s depends on failed task %s", e.TaskID, e.DepID)
}

// ErrWorkflowAborted is the fatal, non-recoverable outcome of an AIL abort,
// an HIL rejection/timeout, or an inbound cancel command (spec §4.4, §5).
type ErrWorkflowAborted struct {
	Reason string
}

func (e *ErrWorkflowAborted) Error() string {
	return "workflow aborted: " + e.Reason
}
