package readahead

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeEquivalence(t *testing.T) {
	in := []Region{
		{Path: "f", Offset: 0, Length: 1000},
		{Path: "f", Offset: 500, Length: 1500},
		{Path: "g", Offset: 0, Length: 500},
	}
	out := Merge(in)
	assert.Equal(t, []Region{
		{Path: "f", Offset: 0, Length: 2000},
		{Path: "g", Offset: 0, Length: 500},
	}, out)
}

func TestMergeNonAdjacentDoesNotCoalesce(t *testing.T) {
	in := []Region{
		{Path: "f", Offset: 0, Length: 100},
		{Path: "f", Offset: 500, Length: 100}, // gap: does not abut
	}
	out := Merge(in)
	assert.Len(t, out, 2)
}

func TestSortByPathTieBreak(t *testing.T) {
	in := []Region{
		{Path: "b", Offset: 0, Length: 10},
		{Path: "a", Offset: 5, Length: 10},
		{Path: "a", Offset: 5, Length: 20},
		{Path: "a", Offset: 0, Length: 10},
	}
	SortByPath(in)
	assert.Equal(t, "a", in[0].Path)
	assert.Equal(t, int64(0), in[0].Offset)
	// offset 5, length 20 sorts before offset 5, length 10 (length descending tie-break).
	assert.Equal(t, int64(5), in[1].Offset)
	assert.Equal(t, int64(20), in[1].Length)
	assert.Equal(t, "b", in[3].Path)
}

type fakeResolver struct{ keys map[string]int64 }

func (r fakeResolver) Key(path string) (int64, error) { return r.keys[path], nil }

func TestSortByKeyGroupsByResolvedKey(t *testing.T) {
	in := []Region{
		{Path: "a", Offset: 0, Length: 10, Block: -1},
		{Path: "b", Offset: 0, Length: 10, Block: -1},
		{Path: "c", Offset: 0, Length: 10, Block: -1},
	}
	resolver := fakeResolver{keys: map[string]int64{"a": 300, "b": 100, "c": 200}}
	SortByKey(in, resolver)
	assert.Equal(t, []string{"b", "c", "a"}, []string{in[0].Path, in[1].Path, in[2].Path})
}

type countingPrefetcher struct {
	mu        sync.Mutex
	calls     int
	live      int32
	maxLive   int32
}

func (c *countingPrefetcher) Prefetch(path string, offset, length int64) error {
	n := atomic.AddInt32(&c.live, 1)
	for {
		old := atomic.LoadInt32(&c.maxLive)
		if n <= old || atomic.CompareAndSwapInt32(&c.maxLive, old, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&c.live, -1)

	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func TestIssueEnforcesMaxProcsCap(t *testing.T) {
	regions := make([]Region, 10)
	for i := range regions {
		regions[i] = Region{Path: "f", Offset: int64(i * 4096), Length: 10} // non-adjacent: no merge
	}
	pf := &countingPrefetcher{}
	cfg := Config{Strategy: StrategyNone, MaxProcs: 2}

	n := Issue(cfg, regions, nil, pf, nil)

	assert.Equal(t, 10, n)
	assert.Equal(t, 10, pf.calls)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&pf.maxLive)), 2)
}

func TestIssueSynchronousWhenMaxProcsZero(t *testing.T) {
	regions := []Region{{Path: "f", Offset: 0, Length: 10}}
	pf := &countingPrefetcher{}
	n := Issue(Config{Strategy: StrategyNone, MaxProcs: 0}, regions, nil, pf, nil)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, pf.calls)
}
