// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.TickSeconds)
	assert.Equal(t, 3, cfg.GlobalConc)
	assert.Equal(t, 1, cfg.IndexerConc)
	assert.Equal(t, filepath.Join(cfg.DataDir, "racecarr.db"), cfg.DatabaseFile)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick_seconds: 120\nlog_level: debug\n"), 0o600))

	t.Setenv("RACECARR_TICK_SECONDS", "300")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.TickSeconds, "env wins over file")
	assert.Equal(t, "debug", cfg.LogLevel, "file wins over default")
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RACECARR_TICK_SECONDS", "5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestParseIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("RACECARR_TEST_INT", "notanumber")
	assert.Equal(t, 7, ParseInt("RACECARR_TEST_INT", 7))
}
