package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPriorityExe(path string) *Exe {
	return &Exe{Path: path, Pool: PoolPriority}
}

func TestInternMapDedup(t *testing.T) {
	m := New()
	a := m.InternMap("/lib/libc.so", 0, 1048576)
	b := m.InternMap("/lib/libc.so", 0, 1048576)
	assert.Same(t, a, b, "identical triples must dedup to the same object (I1)")
	assert.Len(t, m.Maps(), 1)

	c := m.InternMap("/lib/libc.so", 4096, 1048576)
	assert.NotSame(t, a, c, "different offset must not dedup")
	assert.Len(t, m.Maps(), 2)
}

func TestRegisterExeCreatesMarkovsOnlyForPriority(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	m.RegisterExe(a, true, 20)

	b := &Exe{Path: "/u/b", Pool: PoolObservation}
	m.RegisterExe(b, true, 20)
	assert.Empty(t, b.Markovs, "observation pool must never join the Markov mesh (I5)")
	assert.Empty(t, a.Markovs)

	c := newPriorityExe("/u/c")
	m.RegisterExe(c, true, 20)
	require.Len(t, c.Markovs, 1, "second priority exe must get one markov to the first")
	require.Len(t, a.Markovs, 1)

	mk, ok := m.MarkovByID(a.Markovs[0])
	require.True(t, ok)
	assert.Equal(t, a.ID, mk.A)
	assert.Equal(t, c.ID, mk.B)
	for s := 0; s < 4; s++ {
		assert.Equal(t, 20.0, mk.TimeToLeave[s])
	}
}

func TestMarkovSymmetry(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	m.RegisterExe(a, true, 20)
	b := newPriorityExe("/u/b")
	m.RegisterExe(b, true, 20)

	require.Len(t, a.Markovs, 1)
	require.Len(t, b.Markovs, 1)
	assert.Equal(t, a.Markovs[0], b.Markovs[0], "both endpoints reference the same edge (I3)")
}

func TestUnregisterExeTearsDownMarkovs(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	m.RegisterExe(a, true, 20)
	b := newPriorityExe("/u/b")
	m.RegisterExe(b, true, 20)

	m.UnregisterExe(a.ID)
	assert.Empty(t, b.Markovs, "removing one endpoint must clear the other's adjacency")
	assert.Empty(t, m.Markovs())
	_, ok := m.ExeByPath("/u/a")
	assert.False(t, ok)
}

func TestExeIsRunningSentinel(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	m.RegisterExe(a, false, 20)

	assert.False(t, m.ExeIsRunning(a))

	m.SetLastRunningTimestamp(5)
	a.RunningTimestamp = 5
	assert.True(t, m.ExeIsRunning(a))

	m.SetLastRunningTimestamp(10)
	assert.False(t, m.ExeIsRunning(a), "stale running_timestamp no longer matches sentinel")
}

func TestOnMarkovStateChangeUpdatesStateAndDwell(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	m.RegisterExe(a, false, 20)
	b := newPriorityExe("/u/b")
	m.RegisterExe(b, false, 20)
	mk := &Markov{A: a.ID, B: b.ID}
	mk.SeedTransitionClock(0)

	m.Advance(5)
	m.SetLastRunningTimestamp(5)
	a.RunningTimestamp = 5

	m.OnMarkovStateChange(mk)
	assert.Equal(t, 1, mk.State, "A running alone -> state bit 0 set")
	assert.Equal(t, 5.0, mk.Time[0], "elapsed dwell in prior state 0 recorded")
	assert.Equal(t, 1.0, mk.Weight[0][0])
	assert.Equal(t, 1.0, mk.Weight[0][1])

	next, _ := m.ExeByID(a.ID)
	_ = next
	m.Advance(5)
	m.SetLastRunningTimestamp(10)
	a.RunningTimestamp = 10
	b.RunningTimestamp = 10
	m.OnMarkovStateChange(mk)
	assert.Equal(t, 3, mk.State, "both running -> state 3")
}

func TestClassifyPoolOrder(t *testing.T) {
	in := ClassificationInputs{
		ManualApps:          map[string]struct{}{"/opt/manual/app": {}},
		HasDesktopEntry:     func(p string) bool { return p == "/usr/bin/firefox" },
		ExcludedPatterns:    []string{"/usr/lib/*"},
		UserAppPathPrefixes: []string{"/home/"},
	}
	assert.Equal(t, PoolPriority, ClassifyPool("/opt/manual/app", in))
	assert.Equal(t, PoolPriority, ClassifyPool("/usr/bin/firefox", in))
	assert.Equal(t, PoolObservation, ClassifyPool("/usr/lib/foo.so", in))
	assert.Equal(t, PoolPriority, ClassifyPool("/home/user/bin/tool", in))
	assert.Equal(t, PoolObservation, ClassifyPool("/bin/other", in))
}

func TestBadExeTable(t *testing.T) {
	m := New()
	m.MarkBadExe("/tmp/tiny", 100)
	size, ok := m.IsBadExe("/tmp/tiny")
	require.True(t, ok)
	assert.Equal(t, int64(100), size)

	_, ok = m.IsBadExe("/tmp/unknown")
	assert.False(t, ok)
}

func TestIngestExeIsIdempotentByPath(t *testing.T) {
	m := New()
	a := m.IngestExe("/u/a", PoolPriority, 20)
	b := m.IngestExe("/u/a", PoolObservation, 20)
	assert.Same(t, a, b, "re-ingesting an existing path returns the existing Exe unchanged")
	assert.Equal(t, PoolPriority, a.Pool)
	assert.Len(t, m.Exes(), 1)
}

func TestReclassifyPoolPromotesAndWiresMarkovs(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	m.RegisterExe(a, true, 20)
	b := &Exe{Path: "/u/b", Pool: PoolObservation}
	m.RegisterExe(b, true, 20)
	require.Empty(t, b.Markovs)

	in := ClassificationInputs{ManualApps: map[string]struct{}{"/u/b": {}}}
	m.ReclassifyPool(in, 20)

	assert.Equal(t, PoolPriority, b.Pool)
	require.Len(t, b.Markovs, 1)
	require.Len(t, a.Markovs, 1)
	assert.Equal(t, a.Markovs[0], b.Markovs[0])
}

func TestReclassifyPoolDemotesAndTearsDownMarkovs(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	m.RegisterExe(a, true, 20)
	b := newPriorityExe("/u/b")
	m.RegisterExe(b, true, 20)
	require.Len(t, a.Markovs, 1)
	require.Len(t, b.Markovs, 1)

	// No classification inputs at all -> neither path matches any
	// rule, so both fall back to OBSERVATION.
	m.ReclassifyPool(ClassificationInputs{}, 20)

	assert.Equal(t, PoolObservation, a.Pool)
	assert.Equal(t, PoolObservation, b.Pool)
	assert.Empty(t, a.Markovs)
	assert.Empty(t, b.Markovs)
	assert.Empty(t, m.Markovs())
}

func TestReclassifyPoolLeavesLearnedCountsAlone(t *testing.T) {
	m := New()
	a := newPriorityExe("/u/a")
	a.WeightedLaunches = 7.5
	a.Time = 42
	m.RegisterExe(a, true, 20)

	m.ReclassifyPool(ClassificationInputs{}, 20)

	assert.Equal(t, 7.5, a.WeightedLaunches)
	assert.Equal(t, 42.0, a.Time)
}
