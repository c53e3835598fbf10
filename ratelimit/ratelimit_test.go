package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToDefaultBucketWhenRequestsNonPositive(t *testing.T) {
	l := New(Bucket{})
	assert.Equal(t, DefaultBucket, l.fallback)
}

func TestAcquireAllowsBurstUpToCapacity(t *testing.T) {
	l := New(Bucket{Requests: 3, Per: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, "search"))
	}
}

func TestAcquireBlocksBeyondCapacityUntilContextExpires(t *testing.T) {
	l := New(Bucket{Requests: 1, Per: time.Minute})
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "search"))

	deadlineCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(deadlineCtx, "search")
	assert.Error(t, err)
}

func TestConfigureOverridesFallbackForOneTool(t *testing.T) {
	l := New(Bucket{Requests: 1, Per: time.Minute})
	l.Configure("fast", Bucket{Requests: 5, Per: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx, "fast"))
	}
}

func TestDistinctToolsHaveIndependentBuckets(t *testing.T) {
	l := New(Bucket{Requests: 1, Per: time.Minute})
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "tool_a"))

	deadlineCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Acquire(deadlineCtx, "tool_b"))
}
