package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ja7ad/preheatd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOrdersTopAppsByWeighted(t *testing.T) {
	m := model.New()
	low := &model.Exe{Path: "/u/low", Pool: model.PoolPriority, WeightedLaunches: 1}
	high := &model.Exe{Path: "/u/high", Pool: model.PoolObservation, WeightedLaunches: 9, Size: 2048}
	m.RegisterExe(low, false, 0)
	m.RegisterExe(high, false, 0)

	snap := Build(m, "1.0.0", 120, Counters{Hits: 8, Misses: 2, PreloadCount: 3}, map[string]struct{}{"/u/high": {}}, 10)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m, snap))
	out := buf.String()

	assert.Contains(t, out, "version=1.0.0")
	assert.Contains(t, out, "apps_tracked=2")
	assert.Contains(t, out, "pool_priority=1")
	assert.Contains(t, out, "pool_observation=1")
	assert.Contains(t, out, "hit_rate=0.8000")

	highIdx := strings.Index(out, "top_app_0=/u/high")
	lowIdx := strings.Index(out, "top_app_1=/u/low")
	require.NotEqual(t, -1, highIdx)
	require.NotEqual(t, -1, lowIdx)
	assert.Less(t, highIdx, lowIdx, "higher weighted_launches ranks first")
	assert.Contains(t, out, "top_app_0=/u/high:9:0:true:OBSERVATION:2048")
}

func TestHitRateZeroWhenNoObservations(t *testing.T) {
	assert.Equal(t, 0.0, Counters{}.HitRate())
}

func TestBuildCapsTopN(t *testing.T) {
	m := model.New()
	for i := 0; i < 5; i++ {
		e := &model.Exe{Path: string(rune('a' + i)), Pool: model.PoolObservation, WeightedLaunches: float64(i)}
		m.RegisterExe(e, false, 0)
	}
	snap := Build(m, "v", 0, Counters{}, nil, 2)
	assert.Len(t, snap.TopApps, 2)
}
