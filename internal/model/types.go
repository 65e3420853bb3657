// Package model owns the in-memory learning graph: executables, the
// file regions they map, the pairwise Markov state-transition tables
// between PRIORITY executables, and the bookkeeping needed to turn
// observed process activity into prediction input.
//
// Cross-references between Exe, Map and Markov are indices into
// Model's own arenas rather than pointers forming reference cycles
// (Exe<->Markov<->Exe): this keeps the graph trivially walkable and
// GC-friendly without any reference counting.
package model

// MapID indexes into Model.maps.
type MapID int

// ExeID indexes into Model.exes. The zero value is never a valid
// assigned ID; IDs are handed out starting at 1 so a bare ExeID(0)
// can mean "unset" in callers that embed one.
type ExeID int

// MarkovID indexes into Model.markovs.
type MarkovID int

// Map is an immutable file-backed region (path, offset, length).
// Two Maps with an equal triple are always the same object: Model
// deduplicates on insertion (see Model.InternMap).
type Map struct {
	ID     MapID
	Path   string
	Offset int64
	Length int64

	// Block caches a physical-block or inode key resolved lazily for
	// Readahead's INODE/BLOCK sort strategies. -1 means unresolved.
	Block int64

	// RefCount counts the ExeMap edges pointing at this Map; used to
	// detect orphaned Maps (purely informational, Maps are never
	// reaped mid-run).
	RefCount int

	// LnProb is transient: reset to 0 at the start of every Prophet
	// cycle and accumulated during inference.
	LnProb float64
}

// ExeMap is the edge stating that Exe uses Map with some usage
// likelihood. Owned by the Exe; destroyed along with it.
type ExeMap struct {
	Map  MapID
	Prob float64
}

// ProcessInfo is attached to an Exe for each currently-live pid.
type ProcessInfo struct {
	PID              int
	ParentPID        int
	StartTime        float64 // Model clock seconds at first observation
	LastWeightUpdate float64 // Model clock seconds, for weighted-launch accounting
	UserInitiated    bool    // latched at insertion, never recomputed
}

// Exe is a tracked executable at an absolute path.
type Exe struct {
	ID   ExeID
	Path string
	Pool Pool

	Size int64 // sum of owned Map lengths at registration

	Time              float64 // cumulative seconds observed running
	RunningTimestamp  float64
	ChangeTimestamp   float64
	UpdateTime        float64

	RunningPIDs map[int]*ProcessInfo

	RawLaunches      int
	WeightedLaunches float64
	TotalDurationSec float64

	Markovs []MarkovID
	ExeMaps []ExeMap

	// LnProb is transient, reset every Prophet cycle.
	LnProb float64
}

// Markov is the pairwise state-transition table between two PRIORITY
// exes A and B. State is a bitmask: bit 0 = A running, bit 1 = B
// running, so state ranges over {0,1,2,3}.
type Markov struct {
	ID MarkovID
	A  ExeID
	B  ExeID

	State int

	// Weight[s1][s2] counts observed transitions from s1 to s2 over
	// the Markov's lifetime. Weight[s][s] doubles as the sample count
	// for dwelling in state s.
	Weight [4][4]float64

	// Time[s] is cumulative period spent in state s.
	Time [4]float64

	// TimeToLeave[s] is a running average of contiguous dwell time in
	// state s, refreshed incrementally on every transition out of s.
	TimeToLeave [4]float64

	// lastTransitionAt is the Model clock value at which this Markov
	// last changed state (or was created). It is bookkeeping for the
	// dwell-time computation in Model.OnMarkovStateChange and is not
	// part of the durable record; on reload Model.RestoreMarkov seeds
	// it to the Model clock at load time.
	lastTransitionAt float64
}

// SeedTransitionClock initializes the unexported dwell-time bookkeeping
// clock. Used by Model when it creates or restores a Markov.
func (mk *Markov) SeedTransitionClock(t float64) { mk.lastTransitionAt = t }

// MemoryStat is a point-in-time snapshot of host memory pressure, all
// fields in kilobytes except PageIn/PageOut which are page counts.
type MemoryStat struct {
	TotalKB  int64
	FreeKB   int64
	BuffersKB int64
	CachedKB int64
	PageIn   int64
	PageOut  int64
}
