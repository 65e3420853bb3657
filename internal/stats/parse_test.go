package stats

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/ja7ad/preheatd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTripsWrite(t *testing.T) {
	m := model.New()
	a := &model.Exe{Path: "/u/a", Pool: model.PoolPriority, WeightedLaunches: 9, Size: 4096}
	m.RegisterExe(a, false, 0)
	snap := Build(m, "1.2.3", 60, Counters{Hits: 4, Misses: 1, PreloadCount: 2, MemoryPressureEvents: 1}, nil, 5)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m, snap))

	parsed, err := Parse(bufio.NewScanner(strings.NewReader(buf.String())))
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", parsed.Version)
	assert.Equal(t, 60.0, parsed.UptimeSeconds)
	assert.Equal(t, int64(4), parsed.Hits)
	assert.Equal(t, int64(1), parsed.Misses)
	assert.InDelta(t, 0.8, parsed.HitRate, 1e-9)
	require.Len(t, parsed.TopApps, 1)
	assert.Equal(t, "/u/a", parsed.TopApps[0].Name)
	assert.Equal(t, "PRIORITY", parsed.TopApps[0].Pool)
	assert.EqualValues(t, 4096, parsed.TopApps[0].SizeBytes)
}

func TestParseIgnoresUnknownKeys(t *testing.T) {
	parsed, err := Parse(bufio.NewScanner(strings.NewReader("version=1\nfuture_field=42\n")))
	require.NoError(t, err)
	assert.Equal(t, "1", parsed.Version)
}

func TestParseRejectsMalformedTopApp(t *testing.T) {
	_, err := Parse(bufio.NewScanner(strings.NewReader("top_app_0=only:two\n")))
	assert.Error(t, err)
}
