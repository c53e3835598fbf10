package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/internal/config"
	"github.com/smallnest/dagrag/internal/obslog"
)

func TestBuildCheckpointStoreDefaultsToMemory(t *testing.T) {
	store, err := buildCheckpointStore("")
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestBuildCheckpointStoreOpensSQLiteFile(t *testing.T) {
	dir := t.TempDir()
	store, err := buildCheckpointStore(dir + "/checkpoints.db")
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestBuildExecutorRunsASimpleDAGToCompletion(t *testing.T) {
	cfg := config.Defaults()
	store, err := buildCheckpointStore("")
	require.NoError(t, err)

	exec, stream, err := buildExecutor(cfg, store, obslog.NoOp{})
	require.NoError(t, err)
	require.NotNil(t, stream)

	d, err := dag.New([]dag.Task{
		{ID: "task_A", Tool: "search", Kind: dag.KindMCPTool},
	})
	require.NoError(t, err)

	result, err := exec.Execute(context.Background(), d, "wiring-test")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestEchoToolExecutorReturnsArgumentsBack(t *testing.T) {
	fn := echoToolExecutor(obslog.NoOp{})
	out, err := fn.Execute(context.Background(), "search", map[string]any{"q": "cats"})
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "search", m["tool"])
}
