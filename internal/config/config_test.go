package config_test

import (
	"runtime"
	"testing"

	"github.com/fluxrm/modprobe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 2*runtime.NumCPU(), cfg.MaxTasks)
	assert.False(t, cfg.Timing)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_Flags(t *testing.T) {
	cfg, err := config.Parse([]string{"-t", "4", "--timing", "--modprobe-path", "/etc/flux:/opt/flux"})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxTasks)
	assert.True(t, cfg.Timing)
	assert.Equal(t, "/etc/flux:/opt/flux", cfg.ModprobePath)
}

func TestParse_EnvVarPrefix(t *testing.T) {
	t.Setenv("FLUX_MODPROBE_MAX_TASKS", "7")
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxTasks)
}

func TestParse_DisableJobCleanupBareEnvName(t *testing.T) {
	t.Setenv("FLUX_DISABLE_JOB_CLEANUP", "1")
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.True(t, cfg.DisableJobCleanup)
}

func TestParse_FlagOverridesEnv(t *testing.T) {
	t.Setenv("FLUX_MODPROBE_MAX_TASKS", "7")
	cfg, err := config.Parse([]string{"-t", "9"})
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxTasks)
}
