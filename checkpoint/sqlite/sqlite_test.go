package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/dagrag/checkpoint"
	"github.com/smallnest/dagrag/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := &checkpoint.Checkpoint{ID: "cp-1", WorkflowID: "w1", Layer: 1, Timestamp: time.Now(), State: state.New("w1")}
	require.NoError(t, s.Save(ctx, cp, 5))

	got, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "w1", got.WorkflowID)
	assert.Equal(t, 1, got.Layer)
}

func TestLoadMissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRetentionPrunesOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 8; i++ {
		cp := &checkpoint.Checkpoint{
			ID:         string(rune('a' + i)),
			WorkflowID: "w1",
			Layer:      i,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			State:      state.New("w1"),
		}
		require.NoError(t, s.Save(ctx, cp, 5))
	}

	list, err := s.List(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, 3, list[0].Layer)
	assert.Equal(t, 7, list[4].Layer)
}

func TestClearRemovesAllForWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &checkpoint.Checkpoint{ID: "cp1", WorkflowID: "w1", Timestamp: time.Now(), State: state.New("w1")}, 5))
	require.NoError(t, s.Clear(ctx, "w1"))

	list, err := s.List(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
