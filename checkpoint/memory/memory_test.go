package memory

import (
	"context"
	"testing"
	"time"

	"github.com/smallnest/dagrag/checkpoint"
	"github.com/smallnest/dagrag/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckpoint(id, workflowID string, layer int) *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		ID:         id,
		WorkflowID: workflowID,
		Layer:      layer,
		Timestamp:  time.Now(),
		State:      state.New(workflowID),
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New()
	cp := newCheckpoint("cp1", "w1", 0)
	require.NoError(t, s.Save(ctx, cp, 5))

	got, err := s.Load(ctx, "cp1")
	require.NoError(t, err)
	assert.Equal(t, "w1", got.WorkflowID)
}

func TestLoadMissingReturnsError(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRetentionPrunesOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 8; i++ {
		require.NoError(t, s.Save(ctx, newCheckpoint(string(rune('a'+i)), "w1", i), 5))
	}

	list, err := s.List(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, 3, list[0].Layer)
	assert.Equal(t, 7, list[4].Layer)
}

func TestLatestReturnsMostRecentlyWritten(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, newCheckpoint("cp1", "w1", 0), 5))
	require.NoError(t, s.Save(ctx, newCheckpoint("cp2", "w1", 1), 5))

	latest, err := s.Latest(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "cp2", latest.ID)
}

func TestClearRemovesAllForWorkflow(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, newCheckpoint("cp1", "w1", 0), 5))
	require.NoError(t, s.Save(ctx, newCheckpoint("cp2", "w2", 0), 5))

	require.NoError(t, s.Clear(ctx, "w1"))
	list, err := s.List(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, list)

	list2, err := s.List(ctx, "w2")
	require.NoError(t, err)
	assert.Len(t, list2, 1)
}

func TestDeleteRemovesSingleCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, newCheckpoint("cp1", "w1", 0), 5))
	require.NoError(t, s.Delete(ctx, "cp1"))
	_, err := s.Load(ctx, "cp1")
	assert.Error(t, err)
}
