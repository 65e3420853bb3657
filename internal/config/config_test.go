package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 20.0, cfg.Cycle)
	assert.True(t, cfg.UseCorrelation)
	assert.Equal(t, int64(2_000_000), cfg.MinSize)
	assert.Equal(t, 3, cfg.SortStrategy)
	assert.Equal(t, 30, cfg.Processes)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheatd.ini")
	body := `
[model]
cycle = 30
usecorrelation = false
minsize = 5000000

[system]
memfree = 75

[preheat]
processes = 4
sortstrategy = 1
excluded_patterns = /opt/*;/snap/*
user_app_paths = /home/;/Users/
manualapps = /etc/preheatd/manual.txt
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.Cycle)
	assert.False(t, cfg.UseCorrelation)
	assert.Equal(t, int64(5_000_000), cfg.MinSize)
	assert.Equal(t, 75.0, cfg.MemFree)
	assert.Equal(t, -10.0, cfg.MemTotal, "unset options keep the default")
	assert.Equal(t, 4, cfg.Processes)
	assert.Equal(t, 1, cfg.SortStrategy)
	assert.Equal(t, []string{"/opt/*", "/snap/*"}, cfg.ExcludedPatterns)
	assert.Equal(t, []string{"/home/", "/Users/"}, cfg.UserAppPaths)
	assert.Equal(t, "/etc/preheatd/manual.txt", cfg.ManualApps)
}
