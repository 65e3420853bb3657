package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDefaultPathsAreUnderACommonCacheDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	paths := ResolveDefaultPaths()

	assert.NotEmpty(t, paths.StateFile)
	assert.NotEmpty(t, paths.LockFile)
	assert.NotEmpty(t, paths.StatsFile)

	dir := paths.StateFile[:strings.LastIndex(paths.StateFile, "/")]
	assert.True(t, strings.HasPrefix(paths.LockFile, dir))
	assert.True(t, strings.HasPrefix(paths.StatsFile, dir))
}
