package decisions

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// TaskMetadata is the subset of a task's shape the policy predicates
// evaluate over: whether it declares side effects, and (for the mid-layer
// escalation classifier) the sandbox operation it attempted.
type TaskMetadata struct {
	TaskID             string
	HasSideEffects     bool
	RequestedOperation string // "net" | "read" | "write" | "env" | "run" | "ffi" | ...
}

// Policy evaluates CEL expressions over TaskMetadata, used for the HIL
// critical_only trigger and the escalation "is this dangerous" classifier
// (spec §4.4). Grounded on stacklok-toolhive's and 88lin-divinesense's use
// of cel-go for pluggable authorization predicates, rather than a
// hand-rolled rule tree, since the source system treats this policy as
// swappable configuration.
type Policy struct {
	env           *cel.Env
	critProgram   cel.Program
	dangerProgram cel.Program
}

const (
	// DefaultCriticalExpr matches spec §4.4's "critical_only gates on any
	// task in the layer marked as having side effects".
	DefaultCriticalExpr = "task.has_side_effects"
	// DefaultDangerExpr flags the sandbox operations Policy.IsDangerous
	// reports as dangerous; Classify does not consult the policy.
	DefaultDangerExpr = `task.requested_operation in ["write", "run", "ffi", "net"]`
)

// NewPolicy compiles the critical-task and dangerous-operation predicates.
// Empty expressions fall back to the spec defaults above.
func NewPolicy(criticalExpr, dangerExpr string) (*Policy, error) {
	if criticalExpr == "" {
		criticalExpr = DefaultCriticalExpr
	}
	if dangerExpr == "" {
		dangerExpr = DefaultDangerExpr
	}

	env, err := cel.NewEnv(
		cel.Variable("task", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("decisions: building CEL env: %w", err)
	}

	critProgram, err := compile(env, criticalExpr)
	if err != nil {
		return nil, fmt.Errorf("decisions: compiling critical expression: %w", err)
	}
	dangerProgram, err := compile(env, dangerExpr)
	if err != nil {
		return nil, fmt.Errorf("decisions: compiling danger expression: %w", err)
	}

	return &Policy{env: env, critProgram: critProgram, dangerProgram: dangerProgram}, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	return env.Program(ast)
}

func taskVars(t TaskMetadata) map[string]any {
	return map[string]any{
		"task": map[string]any{
			"task_id":             t.TaskID,
			"has_side_effects":    t.HasSideEffects,
			"requested_operation": t.RequestedOperation,
		},
	}
}

func evalBool(program cel.Program, vars map[string]any) (bool, error) {
	out, _, err := program.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("decisions: policy expression did not evaluate to bool, got %T", out)
	}
	return bool(b), nil
}

// IsCritical reports whether t should gate hil.approval_required ==
// critical_only (spec §4.4).
func (p *Policy) IsCritical(t TaskMetadata) (bool, error) {
	return evalBool(p.critProgram, taskVars(t))
}

// IsDangerous reports whether t's requested sandbox operation should be
// treated as requiring escalation regardless of AIL's auto-continue.
func (p *Policy) IsDangerous(t TaskMetadata) (bool, error) {
	return evalBool(p.dangerProgram, taskVars(t))
}
