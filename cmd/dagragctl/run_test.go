package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTasksParsesTaskArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dag.json")
	body := `[{"id":"task_A","tool":"search","kind":"mcp_tool"},` +
		`{"id":"task_B","tool":"summarize","kind":"mcp_tool","depends_on":["task_A"]}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	tasks, err := loadTasks(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task_A", tasks[0].ID)
	assert.Equal(t, []string{"task_A"}, tasks[1].DependsOn)
}

func TestLoadTasksRejectsMissingFile(t *testing.T) {
	_, err := loadTasks("/nonexistent/path/dag.json")
	assert.Error(t, err)
}

func TestLoadTasksRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dag.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := loadTasks(path)
	assert.Error(t, err)
}
