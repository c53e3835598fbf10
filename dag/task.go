// Package dag defines the task graph the scheduler executes: tasks, their
// dependency edges, argument expressions, and the result shape each task
// produces.
package dag

// Kind distinguishes how a task is dispatched by the scheduler's task-type
// router (spec §4.1 step 4).
type Kind string

const (
	KindMCPTool       Kind = "mcp_tool"
	KindCodeExecution Kind = "code_execution"
	KindCapability    Kind = "capability"
)

// Status is the terminal outcome recorded for a task.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusFailedSafe Status = "failed_safe"
)

// SandboxConfig carries the optional worker-bridge sandbox settings for a
// code_execution task. The sandbox itself is an external collaborator; this
// struct only describes how to invoke it.
type SandboxConfig struct {
	Runtime     string            `json:"runtime,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	TimeoutMS   int64             `json:"timeout_ms,omitempty"`
}

// Task is a single unit of work in a DAG. Tasks are immutable once a DAG is
// accepted by the scheduler; the only way to change one is to replan, which
// produces a brand new DAG (spec §3).
type Task struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Arguments  map[string]any `json:"arguments"`
	DependsOn  []string       `json:"depends_on"`
	Kind       Kind           `json:"kind"`
	Sandbox    *SandboxConfig `json:"sandbox,omitempty"`
	Code       string         `json:"code,omitempty"`
	HasSideEffects bool       `json:"has_side_effects,omitempty"`
}

// TaskResult is the single outcome recorded for a task within one run.
type TaskResult struct {
	TaskID          string `json:"task_id"`
	Status          Status `json:"status"`
	Output          any    `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms,omitempty"`
	LayerIndex      int    `json:"layer_index,omitempty"`
}
