package decisions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCriticalDefaultExprMatchesSideEffects(t *testing.T) {
	p, err := NewPolicy("", "")
	require.NoError(t, err)

	critical, err := p.IsCritical(TaskMetadata{TaskID: "task_A", HasSideEffects: true})
	require.NoError(t, err)
	assert.True(t, critical)

	notCritical, err := p.IsCritical(TaskMetadata{TaskID: "task_B", HasSideEffects: false})
	require.NoError(t, err)
	assert.False(t, notCritical)
}

func TestIsDangerousDefaultExprMatchesOperationSet(t *testing.T) {
	p, err := NewPolicy("", "")
	require.NoError(t, err)

	dangerous, err := p.IsDangerous(TaskMetadata{RequestedOperation: "run"})
	require.NoError(t, err)
	assert.True(t, dangerous)

	safe, err := p.IsDangerous(TaskMetadata{RequestedOperation: "read"})
	require.NoError(t, err)
	assert.False(t, safe)
}

func TestNewPolicyCustomExpression(t *testing.T) {
	p, err := NewPolicy(`task.task_id == "special"`, "")
	require.NoError(t, err)

	matches, err := p.IsCritical(TaskMetadata{TaskID: "special"})
	require.NoError(t, err)
	assert.True(t, matches)

	noMatch, err := p.IsCritical(TaskMetadata{TaskID: "ordinary"})
	require.NoError(t, err)
	assert.False(t, noMatch)
}

func TestNewPolicyRejectsInvalidExpression(t *testing.T) {
	_, err := NewPolicy("task.nonexistent_field +++ broken", "")
	assert.Error(t, err)
}
