package dag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Resolved carries the outcome of resolving a single argument value,
// including any non-fatal warning produced along the way (spec §4.1.1:
// "undefined or failed references resolve to undefined with a warning").
type Resolved struct {
	Value   any
	Warning string
}

// ErrReferenceToUndefinedTask and ErrReferenceToFailedTask are the two
// fatal legacy-reference errors (spec §4.1.1, §7).
type ErrReferenceToUndefinedTask struct{ TaskID string }

func (e *ErrReferenceToUndefinedTask) Error() string {
	return fmt.Sprintf("reference to undefined task: %s", e.TaskID)
}

type ErrReferenceToFailedTask struct{ TaskID string }

func (e *ErrReferenceToFailedTask) Error() string {
	return fmt.Sprintf("reference to failed task: %s", e.TaskID)
}

var legacyOutputRe = regexp.MustCompile(`^\$OUTPUT\[([A-Za-z0-9_\-]+)\](?:\.(.+))?$`)

// pathSegment grammar: identifier (. identifier | [index])*
var pathSegmentRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)|\[(\d+)\]`)

// Resolver resolves task argument expressions against the parent results
// already recorded in a run. It is stateless aside from the lookup
// functions supplied at construction, so it can be reused layer to layer.
type Resolver struct {
	// ResultFor returns the TaskResult for a given task id, and whether
	// that task has completed at all.
	ResultFor func(taskID string) (TaskResult, bool)
	// Parameters resolves {type: parameter, parameterName} values.
	Parameters map[string]any
}

// ResolveArguments resolves every value in a task's Arguments map,
// recursively descending into nested maps and slices (spec §4.1.1:
// "Nested object values are resolved recursively; arrays are traversed by
// numeric index").
func (r *Resolver) ResolveArguments(args map[string]any) (map[string]any, []string, error) {
	out := make(map[string]any, len(args))
	var warnings []string
	for k, v := range args {
		resolved, err := r.resolveValue(v)
		if err != nil {
			return nil, warnings, err
		}
		if resolved.Warning != "" {
			warnings = append(warnings, resolved.Warning)
		}
		out[k] = resolved.Value
	}
	return out, warnings, nil
}

func (r *Resolver) resolveValue(v any) (Resolved, error) {
	switch val := v.(type) {
	case map[string]any:
		if t, ok := val["type"].(string); ok {
			return r.resolveStructured(t, val)
		}
		// Plain nested object: resolve every field.
		nested := make(map[string]any, len(val))
		var warning string
		for k, sub := range val {
			rv, err := r.resolveValue(sub)
			if err != nil {
				return Resolved{}, err
			}
			if rv.Warning != "" {
				warning = rv.Warning
			}
			nested[k] = rv.Value
		}
		return Resolved{Value: nested, Warning: warning}, nil
	case []any:
		arr := make([]any, len(val))
		var warning string
		for i, sub := range val {
			rv, err := r.resolveValue(sub)
			if err != nil {
				return Resolved{}, err
			}
			if rv.Warning != "" {
				warning = rv.Warning
			}
			arr[i] = rv.Value
		}
		return Resolved{Value: arr, Warning: warning}, nil
	case string:
		return r.resolveLegacyString(val)
	default:
		return Resolved{Value: v}, nil
	}
}

func (r *Resolver) resolveStructured(kind string, val map[string]any) (Resolved, error) {
	switch kind {
	case "literal":
		return r.resolveValue(val["value"])
	case "parameter":
		name, _ := val["parameterName"].(string)
		pv, ok := r.Parameters[name]
		if !ok {
			return Resolved{Value: nil, Warning: fmt.Sprintf("undefined parameter: %s", name)}, nil
		}
		return Resolved{Value: pv}, nil
	case "reference":
		expr, _ := val["expression"].(string)
		return r.resolveReferenceExpression(expr)
	default:
		// Unknown structured type: treat as a literal map.
		return Resolved{Value: val}, nil
	}
}

// resolveReferenceExpression resolves the grammar
// identifier (. identifier | [index])* and also template literals of the
// form `${expr}...` by substitution (spec §4.1.1).
func (r *Resolver) resolveReferenceExpression(expr string) (Resolved, error) {
	if strings.Contains(expr, "${") {
		return r.resolveTemplate(expr)
	}
	return r.resolvePath(expr)
}

func (r *Resolver) resolveTemplate(tmpl string) (Resolved, error) {
	tmpl = strings.TrimPrefix(tmpl, "`")
	tmpl = strings.TrimSuffix(tmpl, "`")
	var sb strings.Builder
	var warning string
	rest := tmpl
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			sb.WriteString(rest)
			break
		}
		end += start
		sb.WriteString(rest[:start])
		inner := rest[start+2 : end]
		resolved, err := r.resolvePath(inner)
		if err != nil {
			return Resolved{}, err
		}
		if resolved.Warning != "" {
			warning = resolved.Warning
		}
		sb.WriteString(fmt.Sprint(resolved.Value))
		rest = rest[end+1:]
	}
	return Resolved{Value: sb.String(), Warning: warning}, nil
}

func (r *Resolver) resolvePath(expr string) (Resolved, error) {
	matches := pathSegmentRe.FindAllStringSubmatch(expr, -1)
	if len(matches) == 0 {
		return Resolved{Value: nil, Warning: fmt.Sprintf("malformed reference expression: %s", expr)}, nil
	}

	nodeID := matches[0][1]
	if nodeID == "" {
		return Resolved{Value: nil, Warning: fmt.Sprintf("malformed reference expression: %s", expr)}, nil
	}
	taskID := "task_" + nodeID

	result, ok := r.ResultFor(taskID)
	if !ok {
		return Resolved{Value: nil, Warning: fmt.Sprintf("undefined reference to task %s", taskID)}, nil
	}
	if result.Status == StatusError {
		return Resolved{Value: nil, Warning: fmt.Sprintf("reference to failed task %s", taskID)}, nil
	}

	var cur any = result.Output
	for _, seg := range matches[1:] {
		if seg[1] != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return Resolved{Value: nil, Warning: fmt.Sprintf("path %s does not resolve on task %s", expr, taskID)}, nil
			}
			cur, ok = m[seg[1]]
			if !ok {
				return Resolved{Value: nil, Warning: fmt.Sprintf("path %s does not resolve on task %s", expr, taskID)}, nil
			}
		} else if seg[2] != "" {
			idx, _ := strconv.Atoi(seg[2])
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return Resolved{Value: nil, Warning: fmt.Sprintf("path %s does not resolve on task %s", expr, taskID)}, nil
			}
			cur = arr[idx]
		}
	}
	return Resolved{Value: cur}, nil
}

// resolveLegacyString resolves legacy $OUTPUT[task_id](.path)? strings.
// Unlike structured references, these are fatal on failure (spec §4.1.1).
func (r *Resolver) resolveLegacyString(s string) (Resolved, error) {
	m := legacyOutputRe.FindStringSubmatch(s)
	if m == nil {
		return Resolved{Value: s}, nil
	}
	taskID, path := m[1], m[2]

	result, ok := r.ResultFor(taskID)
	if !ok {
		return Resolved{}, &ErrReferenceToUndefinedTask{TaskID: taskID}
	}
	if result.Status == StatusError {
		return Resolved{}, &ErrReferenceToFailedTask{TaskID: taskID}
	}

	cur := result.Output
	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				return Resolved{Value: nil}, nil
			}
			cur = m[seg]
		}
	}
	return Resolved{Value: cur}, nil
}
