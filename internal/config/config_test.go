package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30_000, cfg.TaskTimeoutMS)
	assert.Equal(t, 300_000, cfg.Timeouts.HILMS)
	assert.Equal(t, 60_000, cfg.Timeouts.AILMS)
	assert.Equal(t, 5, cfg.CheckpointRetention)
	assert.Equal(t, HILCriticalOnly, cfg.HIL.ApprovalRequired)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("DAGRAG_TASK_TIMEOUT_MS", "9999")
	t.Setenv("DAGRAG_USER_ID", "alice")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.TaskTimeoutMS)
	assert.Equal(t, "alice", cfg.UserID)
}

func TestLoadFromYAMLFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("max_concurrency: 4\nhil:\n  enabled: true\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.True(t, cfg.HIL.Enabled)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 30_000, cfg.TaskTimeoutMS)
}
