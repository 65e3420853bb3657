package model

import "fmt"

type mapKey struct {
	path   string
	offset int64
	length int64
}

// Model is the single in-memory learning graph. It owns stable arenas
// for Map, Exe and Markov; every cross-reference between them is an
// ID into the owning arena rather than a pointer, which sidesteps the
// Exe<->Markov reference cycle without reference counting.
//
// All mutation happens on the scheduler's single goroutine (see
// internal/scheduler); Model itself holds no lock.
type Model struct {
	maps     []*Map
	mapIndex map[mapKey]MapID

	exes       map[ExeID]*Exe
	exeOrder   []ExeID
	exeIndex   map[string]ExeID
	nextExeSeq ExeID

	badExes map[string]int64

	markovs       map[MarkovID]*Markov
	markovOrder   []MarkovID
	nextMarkovSeq MarkovID

	runningExes []ExeID

	// clock is the Model's own monotonic seconds counter, advanced by
	// the scheduler by half a cycle on every phase tick. It is NOT wall
	// clock time; it is whatever the scheduler feeds via Advance.
	clock float64

	lastRunningTimestamp    float64
	lastAccountingTimestamp float64
}

// New returns an empty Model.
func New() *Model {
	return &Model{
		mapIndex:    make(map[mapKey]MapID),
		exes:        make(map[ExeID]*Exe),
		exeIndex:    make(map[string]ExeID),
		badExes:     make(map[string]int64),
		markovs:     make(map[MarkovID]*Markov),
		// -1 is never a Model clock value, so an Exe registered before
		// the first scan (RunningTimestamp 0) does not count as running.
		lastRunningTimestamp:    -1,
		lastAccountingTimestamp: 0,
	}
}

// Clock returns the Model's current time.
func (m *Model) Clock() float64 { return m.clock }

// Advance moves the Model clock forward by dt seconds (dt may be
// zero but never negative).
func (m *Model) Advance(dt float64) {
	if dt < 0 {
		dt = 0
	}
	m.clock += dt
}

// LastRunningTimestamp and LastAccountingTimestamp expose the
// sentinel clocks used by ExeIsRunning and time accounting.
func (m *Model) LastRunningTimestamp() float64    { return m.lastRunningTimestamp }
func (m *Model) LastAccountingTimestamp() float64 { return m.lastAccountingTimestamp }

// SetLastRunningTimestamp is called by Spy at the end of Phase A.
func (m *Model) SetLastRunningTimestamp(ts float64) { m.lastRunningTimestamp = ts }

// SetLastAccountingTimestamp is called by Spy at the end of Phase B
// time accounting.
func (m *Model) SetLastAccountingTimestamp(ts float64) { m.lastAccountingTimestamp = ts }

// InternMap returns the existing Map for (path, offset, length),
// creating one if this is the first time it's been seen. This is the
// sole path by which Maps enter the Model and is what guarantees
// invariant I1 (dedup by identity).
func (m *Model) InternMap(path string, offset, length int64) *Map {
	key := mapKey{path: path, offset: offset, length: length}
	if id, ok := m.mapIndex[key]; ok {
		return m.maps[id]
	}
	id := MapID(len(m.maps))
	mp := &Map{ID: id, Path: path, Offset: offset, Length: length, Block: -1}
	m.maps = append(m.maps, mp)
	m.mapIndex[key] = id
	return mp
}

// MapByID looks up a Map by its ID (assumes caller holds a valid ID).
func (m *Model) MapByID(id MapID) (*Map, bool) {
	if int(id) < 0 || int(id) >= len(m.maps) {
		return nil, false
	}
	return m.maps[id], true
}

// Maps returns all Maps in dense insertion order.
func (m *Model) Maps() []*Map { return m.maps }

// ExeByPath looks up a registered Exe by its path key.
func (m *Model) ExeByPath(path string) (*Exe, bool) {
	id, ok := m.exeIndex[path]
	if !ok {
		return nil, false
	}
	return m.exes[id], true
}

// ExeByID looks up a registered Exe by ID.
func (m *Model) ExeByID(id ExeID) (*Exe, bool) {
	e, ok := m.exes[id]
	return e, ok
}

// Exes returns every currently-registered Exe in registration order.
func (m *Model) Exes() []*Exe {
	out := make([]*Exe, 0, len(m.exeOrder))
	for _, id := range m.exeOrder {
		if e, ok := m.exes[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// IsBadExe reports whether path was previously rejected for being
// under minsize, and the size that was observed.
func (m *Model) IsBadExe(path string) (int64, bool) {
	size, ok := m.badExes[path]
	return size, ok
}

// MarkBadExe records path as rejected (map-sum below minsize) so
// later scans don't re-query it every cycle.
func (m *Model) MarkBadExe(path string, observedSize int64) {
	m.badExes[path] = observedSize
}

// BadExes returns the bad-exe table as (path, size) pairs.
func (m *Model) BadExes() map[string]int64 { return m.badExes }

// RunningExes returns the exes considered running as of the last
// scan (the slice Spy installed via SetRunningExes).
func (m *Model) RunningExes() []ExeID { return m.runningExes }

// SetRunningExes replaces the running-exes list (Spy does this at the
// end of Phase A).
func (m *Model) SetRunningExes(ids []ExeID) { m.runningExes = ids }

// ExeIsRunning implements the sentinel-timestamp convention: an Exe
// is running iff its RunningTimestamp equals the Model's
// last_running_timestamp from the most recent scan.
func (m *Model) ExeIsRunning(e *Exe) bool {
	if e == nil {
		return false
	}
	return e.RunningTimestamp == m.lastRunningTimestamp
}

// RegisterExe assigns the exe the next monotonic sequence number,
// inserts it into the exe table, and — when createMarkovs is true
// and the exe is PRIORITY — creates a fresh Markov edge to every
// other already-registered PRIORITY exe. initialTimeToLeave seeds
// TimeToLeave[*] on every newly created Markov (spec.md: "time =
// period" at creation).
func (m *Model) RegisterExe(e *Exe, createMarkovs bool, initialTimeToLeave float64) {
	m.nextExeSeq++
	e.ID = m.nextExeSeq
	if e.RunningPIDs == nil {
		e.RunningPIDs = make(map[int]*ProcessInfo)
	}
	m.exes[e.ID] = e
	m.exeOrder = append(m.exeOrder, e.ID)
	m.exeIndex[e.Path] = e.ID

	if !createMarkovs || e.Pool != PoolPriority {
		return
	}
	for _, otherID := range m.exeOrder[:len(m.exeOrder)-1] {
		other, ok := m.exes[otherID]
		if !ok || other.Pool != PoolPriority {
			continue
		}
		m.createMarkov(other, e, initialTimeToLeave)
	}
}

// IngestExe registers path as a known Exe before it has ever been
// observed running, used by internal/bootstrap to seed the Model from
// desktop entries, shell history and the manual-apps whitelist at
// startup. It is a no-op returning the existing Exe if path is
// already registered (bootstrap sources may overlap a live scan).
// initialTimeToLeave seeds any Markovs created against other PRIORITY
// exes, same as RegisterExe.
func (m *Model) IngestExe(path string, pool Pool, initialTimeToLeave float64) *Exe {
	if e, ok := m.ExeByPath(path); ok {
		return e
	}
	e := &Exe{Path: path, Pool: pool, UpdateTime: m.clock}
	m.RegisterExe(e, true, initialTimeToLeave)
	return e
}

func (m *Model) createMarkov(a, b *Exe, initialTimeToLeave float64) {
	m.nextMarkovSeq++
	mk := &Markov{ID: m.nextMarkovSeq, A: a.ID, B: b.ID}
	state := 0
	if m.ExeIsRunning(a) {
		state |= 1
	}
	if m.ExeIsRunning(b) {
		state |= 2
	}
	mk.State = state
	for s := 0; s < 4; s++ {
		mk.TimeToLeave[s] = initialTimeToLeave
	}
	mk.SeedTransitionClock(m.clock)
	m.markovs[mk.ID] = mk
	m.markovOrder = append(m.markovOrder, mk.ID)
	a.Markovs = append(a.Markovs, mk.ID)
	b.Markovs = append(b.Markovs, mk.ID)
}

// RestoreMarkov rebuilds a Markov edge from durable state (see
// internal/statestore), bypassing the live-observation seeding
// createMarkov does: every field is supplied by the caller verbatim,
// and the dwell-time clock is seeded to the Model's current clock
// rather than recomputed from history.
func (m *Model) RestoreMarkov(a, b *Exe, state int, timeToLeave [4]float64, weight [4][4]float64, timeOcc [4]float64) *Markov {
	m.nextMarkovSeq++
	mk := &Markov{
		ID:          m.nextMarkovSeq,
		A:           a.ID,
		B:           b.ID,
		State:       state,
		Weight:      weight,
		Time:        timeOcc,
		TimeToLeave: timeToLeave,
	}
	mk.SeedTransitionClock(m.clock)
	m.markovs[mk.ID] = mk
	m.markovOrder = append(m.markovOrder, mk.ID)
	a.Markovs = append(a.Markovs, mk.ID)
	b.Markovs = append(b.Markovs, mk.ID)
	return mk
}

// UnregisterExe tears down every Markov incident to e (removing it
// from both endpoints' adjacency lists and from the Model) and then
// removes e itself.
func (m *Model) UnregisterExe(id ExeID) {
	e, ok := m.exes[id]
	if !ok {
		return
	}
	for _, mid := range e.Markovs {
		mk, ok := m.markovs[mid]
		if !ok {
			continue
		}
		other := mk.A
		if other == id {
			other = mk.B
		}
		if oe, ok := m.exes[other]; ok {
			oe.Markovs = removeMarkovID(oe.Markovs, mid)
		}
		delete(m.markovs, mid)
	}
	delete(m.exes, id)
	delete(m.exeIndex, e.Path)
}

// ReclassifyPool re-evaluates every Exe's pool against in, for the
// reload-config signal (spec.md §6: "re-evaluate pool classification
// for existing exes, do not clear learned counts"). An Exe promoted
// to PRIORITY gets a fresh Markov to every other PRIORITY exe,
// seeded with initialTimeToLeave like a new registration; an Exe
// demoted to OBSERVATION has every incident Markov torn down,
// preserving invariant I5. Learned fields on the Exe itself
// (WeightedLaunches, Time, ...) are untouched either way.
func (m *Model) ReclassifyPool(in ClassificationInputs, initialTimeToLeave float64) {
	for _, e := range m.Exes() {
		newPool := ClassifyPool(e.Path, in)
		if newPool == e.Pool {
			continue
		}
		if e.Pool == PoolPriority && newPool == PoolObservation {
			m.demoteToObservation(e)
		} else if e.Pool == PoolObservation && newPool == PoolPriority {
			e.Pool = PoolPriority
			for _, other := range m.Exes() {
				if other.ID == e.ID || other.Pool != PoolPriority {
					continue
				}
				m.createMarkov(other, e, initialTimeToLeave)
			}
		}
	}
}

func (m *Model) demoteToObservation(e *Exe) {
	for _, mid := range e.Markovs {
		mk, ok := m.markovs[mid]
		if !ok {
			continue
		}
		other := mk.A
		if other == e.ID {
			other = mk.B
		}
		if oe, ok := m.exes[other]; ok {
			oe.Markovs = removeMarkovID(oe.Markovs, mid)
		}
		delete(m.markovs, mid)
	}
	e.Markovs = nil
	e.Pool = PoolObservation
}

func removeMarkovID(ids []MarkovID, target MarkovID) []MarkovID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Markovs returns every live Markov in creation order.
func (m *Model) Markovs() []*Markov {
	out := make([]*Markov, 0, len(m.markovOrder))
	for _, id := range m.markovOrder {
		if mk, ok := m.markovs[id]; ok {
			out = append(out, mk)
		}
	}
	return out
}

// MarkovByID looks up a Markov by ID.
func (m *Model) MarkovByID(id MarkovID) (*Markov, bool) {
	mk, ok := m.markovs[id]
	return mk, ok
}

// OnMarkovStateChange is invoked exactly once per observed transition
// of mk's pair (see internal/spy). It recomputes State from the two
// exes' current running status, bumps the transition-count cell
// Weight[prev][next], accumulates the elapsed dwell time into
// Time[prev], and refreshes the incremental-mean dwell estimate
// TimeToLeave[prev].
//
// Weight[prev][prev] is bumped on every call regardless of the
// destination state: it is the "how many times have we left prev"
// denominator Prophet divides by, which is also what spec.md calls
// out as the self-loop cell doubling as a sample count.
func (m *Model) OnMarkovStateChange(mk *Markov) {
	a, aok := m.exes[mk.A]
	b, bok := m.exes[mk.B]
	if !aok || !bok {
		return
	}
	prev := mk.State
	next := 0
	if m.ExeIsRunning(a) {
		next |= 1
	}
	if m.ExeIsRunning(b) {
		next |= 2
	}

	elapsed := m.clock - mk.lastTransitionAt
	if elapsed < 0 {
		elapsed = 0
	}

	mk.Weight[prev][prev]++
	if next != prev {
		mk.Weight[prev][next]++
	}
	mk.Time[prev] += elapsed

	n := mk.Weight[prev][prev]
	if n <= 0 {
		n = 1
	}
	mk.TimeToLeave[prev] += (elapsed - mk.TimeToLeave[prev]) / n

	mk.State = next
	mk.lastTransitionAt = m.clock
}

// MarkRunning stamps e as running as of ts and appends it to the
// running-exes list. Used by Spy's Phase B when a freshly registered
// exe was observed via a live pid mid-cycle, before it existed in the
// Model for Phase A's scan to have marked it running.
func (m *Model) MarkRunning(e *Exe, ts float64) {
	e.RunningTimestamp = ts
	m.runningExes = append(m.runningExes, e.ID)
}

// AddExeMap links e to mp with the given usage probability (default
// 1.0 is the caller's responsibility). mp must have come from
// InternMap so it is guaranteed to already live in the Map table,
// satisfying invariant I2 by construction.
func (m *Model) AddExeMap(e *Exe, mp *Map, prob float64) {
	e.ExeMaps = append(e.ExeMaps, ExeMap{Map: mp.ID, Prob: prob})
	mp.RefCount++
}

func (m *Model) String() string {
	return fmt.Sprintf("model(exes=%d maps=%d markovs=%d clock=%.1f)",
		len(m.exes), len(m.maps), len(m.markovs), m.clock)
}
