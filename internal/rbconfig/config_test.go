package rbconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().MaxRetries, cfg.MaxRetries)
	assert.Equal(t, Default().StoreDSN, cfg.StoreDSN)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runbookengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 9\nparallel_execution: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.True(t, cfg.ParallelExecution)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runbookengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 9\n"), 0o644))

	t.Setenv("RUNBOOK_MAX_RETRIES", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.MaxRetries)
}
