package readahead

import "sort"

// Strategy selects how Maps are ordered before merge and issuance.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyPath
	StrategyInode
	StrategyBlock
)

// ParseStrategy maps the numeric config values from spec.md's option
// table (0=NONE, 1=PATH, 2=INODE, 3=BLOCK) onto a Strategy.
func ParseStrategy(n int) Strategy {
	switch n {
	case 1:
		return StrategyPath
	case 2:
		return StrategyInode
	case 3:
		return StrategyBlock
	default:
		return StrategyNone
	}
}

// Region is the minimal readahead input: a file-backed byte range.
// BlockMapper-resolved keys are cached by the caller into the
// originating model.Map, but sort operates on this decoupled copy so
// the package has no dependency on internal/model.
type Region struct {
	Path   string
	Offset int64
	Length int64
	Block  int64 // -1 if unresolved; populated in place for INODE/BLOCK
}

// pathTieBreak orders by path, then offset ascending, then length
// descending — the tie-break spec.md specifies for PATH/INODE/BLOCK.
func pathTieBreak(a, b Region) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.Length > b.Length
}

// SortNone preserves input order; provided for symmetry with the
// other strategies so callers can dispatch uniformly.
func SortNone(regions []Region) {}

// SortByPath orders lexicographically by path with the standard
// offset/length tie-break.
func SortByPath(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool { return pathTieBreak(regions[i], regions[j]) })
}

// KeyResolver resolves a path's inode or physical-block key; it is
// internal/procfs.BlockMapper narrowed to the one method readahead
// needs. SortByKey caches each path's key for the duration of a call.
type KeyResolver interface {
	Key(path string) (int64, error)
}

// SortByKey implements the INODE and BLOCK strategies: sort by path
// first (to warm the directory cache before opening each file for the
// stat/ioctl), resolve each unique path's key once, then stable-sort
// by key with the PATH tie-break as a secondary order.
func SortByKey(regions []Region, resolve KeyResolver) {
	SortByPath(regions)

	keyCache := make(map[string]int64)
	for i := range regions {
		r := &regions[i]
		if r.Block >= 0 {
			continue
		}
		if k, ok := keyCache[r.Path]; ok {
			r.Block = k
			continue
		}
		k, err := resolve.Key(r.Path)
		if err != nil {
			k = -1
		}
		keyCache[r.Path] = k
		r.Block = k
	}

	sort.SliceStable(regions, func(i, j int) bool {
		a, b := regions[i], regions[j]
		if a.Block != b.Block {
			// Unresolved (-1) keys sort last: best-effort, never
			// blocks an otherwise orderable batch.
			if a.Block < 0 {
				return false
			}
			if b.Block < 0 {
				return true
			}
			return a.Block < b.Block
		}
		return pathTieBreak(a, b)
	})
}

// Sort dispatches to the strategy-appropriate sort. NONE and PATH
// never need a KeyResolver; INODE/BLOCK do, and the only difference
// between them is which BlockMapper the caller constructs (see
// internal/procfs.InodeBlockMapper.UseFIBMAP).
func Sort(strategy Strategy, regions []Region, resolve KeyResolver) {
	switch strategy {
	case StrategyPath:
		SortByPath(regions)
	case StrategyInode, StrategyBlock:
		SortByKey(regions, resolve)
	default:
		SortNone(regions)
	}
}
