package daemonlog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupForegroundWritesTextAtRequestedLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Level: "warn", Foreground: true, Output: &buf})
	require.NoError(t, err)

	logger.Info("should not appear")
	logger.Warn("should appear", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
	assert.Contains(t, out, "k=v")
}

func TestSetupBackgroundWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Level: "debug", Foreground: false, Output: &buf})
	require.NoError(t, err)

	logger.Debug("hello", "n", 1)
	out := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"msg":"hello"`)
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(Options{Level: "verbose"})
	assert.Error(t, err)
}

func TestSetupDefaultLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Foreground: true, Output: &buf})
	require.NoError(t, err)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupInstallsDefault(t *testing.T) {
	var buf bytes.Buffer
	_, err := Setup(Options{Foreground: true, Output: &buf})
	require.NoError(t, err)
	slog.Info("via default")
	assert.Contains(t, buf.String(), "via default")
}
