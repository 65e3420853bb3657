// Package spy implements the two-phase process observer: a fast scan
// that marks running/not-running transitions and queues newly seen
// executables, and a delayed update pass that promotes queued exes
// into the Model and drives Markov state transitions.
package spy

import (
	"math"

	"github.com/ja7ad/preheatd/internal/model"
	"github.com/ja7ad/preheatd/internal/procfs"
)

// ProcSource is the subset of procfs.Source that Spy depends on,
// narrowed to an interface so tests can substitute a fake process
// table without touching the real kernel.
type ProcSource interface {
	ForEachProcess(visit procfs.Visit) error
	GetParent(pid int) (int, bool)
	ReadMaps(pid int) (int64, []procfs.MapRegion, bool)
	ExePath(pid int) (string, bool)
	ExeBasename(pid int) (string, bool)
}

// Config holds the [model]/[preheat] tunables Spy needs.
type Config struct {
	MinSize             int64   // minsize: new-exe inclusion threshold
	Cycle               float64 // cycle: seeds fresh Markovs' TimeToLeave
	Divisor             float64 // weighted-launch Δt divisor, default 60
	UserMultiplier      float64 // default 2.0
	ShortLivedPenalty   float64 // default 0.3
	ShortLivedThreshold float64 // seconds, default 5
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		MinSize:             2_000_000,
		Cycle:               20,
		Divisor:             60,
		UserMultiplier:      2.0,
		ShortLivedPenalty:   0.3,
		ShortLivedThreshold: 5,
	}
}

// DesktopEntryChecker reports whether a desktop descriptor exists for
// an absolute exe path; nil disables the check.
type DesktopEntryChecker func(path string) bool

// Spy is the two-phase observer. Its per-cycle transient state
// (state-changed exes, newly-running exes, newly-seen exe paths) is
// reset at the start of every Scan, mirroring spec.md's "module-scoped,
// reset at scan entry" note — but as fields of this struct rather than
// module-level statics, so multiple independent Spy instances (and
// therefore multiple independent daemons) can coexist in one process.
type Spy struct {
	cfg      Config
	source   ProcSource
	classify model.ClassificationInputs
	desktop  DesktopEntryChecker

	stateChangedExes []model.ExeID
	newExes          map[string]int // path -> pid
}

// New returns a Spy bound to source, using classify for pool
// classification of newly promoted exes and desktop for the
// user-initiated override heuristic.
func New(cfg Config, source ProcSource, classify model.ClassificationInputs, desktop DesktopEntryChecker) *Spy {
	return &Spy{cfg: cfg, source: source, classify: classify, desktop: desktop}
}

// SetClassification updates the pool-classification inputs, used by
// the reload-config signal to re-evaluate without clearing learned
// state.
func (s *Spy) SetClassification(c model.ClassificationInputs) { s.classify = c }

// Scan is Phase A: fast, called at cycle start. It marks running
// transitions, refreshes running timestamps, captures newly seen
// pids of already-tracked exes, accounts weighted launches, reaps
// exited pids, and replaces Model.RunningExes with the fresh set.
func (s *Spy) Scan(m *model.Model) error {
	s.stateChangedExes = nil
	s.newExes = make(map[string]int)

	now := m.Clock()
	prevRunning := m.RunningExes()

	seenPIDs := make(map[int]struct{})
	var newRunning []model.ExeID
	transitioned := make(map[model.ExeID]struct{})
	visited := make(map[model.ExeID]struct{})

	err := s.source.ForEachProcess(func(pid int, path string) {
		seenPIDs[pid] = struct{}{}

		exe, ok := m.ExeByPath(path)
		if !ok {
			if _, bad := m.IsBadExe(path); !bad {
				s.newExes[path] = pid
			}
			return
		}

		// Only an exe's first pid this scan can mark a transition; later
		// pids see the RunningTimestamp the first one already refreshed.
		if _, again := visited[exe.ID]; !again {
			visited[exe.ID] = struct{}{}
			if !m.ExeIsRunning(exe) {
				newRunning = append(newRunning, exe.ID)
				s.stateChangedExes = append(s.stateChangedExes, exe.ID)
				transitioned[exe.ID] = struct{}{}
			}
		}
		exe.RunningTimestamp = now

		if _, ok := exe.RunningPIDs[pid]; !ok {
			pinfo := s.captureProcessInfo(pid, path, now)
			if exe.RunningPIDs == nil {
				exe.RunningPIDs = make(map[int]*model.ProcessInfo)
			}
			exe.RunningPIDs[pid] = pinfo
			if pinfo.UserInitiated {
				exe.RawLaunches++
			}
		}
	})
	if err != nil {
		return err
	}

	for _, id := range prevRunning {
		if _, already := transitioned[id]; already {
			continue
		}
		exe, ok := m.ExeByID(id)
		if !ok {
			continue
		}
		if exe.RunningTimestamp == now {
			newRunning = append(newRunning, id)
		} else {
			s.stateChangedExes = append(s.stateChangedExes, id)
		}
	}

	for _, exe := range m.Exes() {
		s.accountWeightedLaunches(exe, now)
		s.reapExitedPIDs(exe, now, seenPIDs)
	}

	m.SetRunningExes(newRunning)
	m.SetLastRunningTimestamp(now)
	return nil
}

func (s *Spy) captureProcessInfo(pid int, exePath string, now float64) *model.ProcessInfo {
	parent, parentOK := s.source.GetParent(pid)
	userInit := false
	if parentOK {
		parentPath, _ := s.source.ExePath(parent)
		parentBase, _ := s.source.ExeBasename(parent)
		userInit = userInitiatedFromParent(parentPath, parentBase)
	}
	if !userInit && s.desktop != nil && s.desktop(exePath) {
		userInit = true
	}
	return &model.ProcessInfo{
		PID:              pid,
		ParentPID:        parent,
		StartTime:        now,
		LastWeightUpdate: now,
		UserInitiated:    userInit,
	}
}

// accountWeightedLaunches implements spec.md §4.3.1's per-scan weight
// update for every live pid of exe.
func (s *Spy) accountWeightedLaunches(exe *model.Exe, now float64) {
	for _, pinfo := range exe.RunningPIDs {
		dt := now - pinfo.LastWeightUpdate
		if dt < 0 {
			dt = 0
		}
		w := math.Log(1 + dt/s.cfg.Divisor)
		if pinfo.UserInitiated {
			w *= s.cfg.UserMultiplier
		}
		if now-pinfo.StartTime < s.cfg.ShortLivedThreshold {
			w *= s.cfg.ShortLivedPenalty
		}
		exe.WeightedLaunches += w
		pinfo.LastWeightUpdate = now
	}
}

func (s *Spy) reapExitedPIDs(exe *model.Exe, now float64, seen map[int]struct{}) {
	for pid, pinfo := range exe.RunningPIDs {
		if _, alive := seen[pid]; alive {
			continue
		}
		exe.TotalDurationSec += now - pinfo.StartTime
		delete(exe.RunningPIDs, pid)
	}
}

// UpdateModel is Phase B, called roughly cycle/2 seconds after Scan.
// It promotes queued new exes into the Model, fires Markov state
// transitions for every exe whose running status flipped this cycle
// (once per Markov, even when both of its exes flipped), and performs
// the period time accounting.
func (s *Spy) UpdateModel(m *model.Model) {
	for path, pid := range s.newExes {
		s.promoteNewExe(m, path, pid)
	}

	fired := make(map[model.MarkovID]struct{})
	for _, id := range s.stateChangedExes {
		exe, ok := m.ExeByID(id)
		if !ok {
			continue
		}
		exe.ChangeTimestamp = m.Clock()
		for _, mid := range exe.Markovs {
			if _, done := fired[mid]; done {
				continue
			}
			fired[mid] = struct{}{}
			if mk, ok := m.MarkovByID(mid); ok {
				m.OnMarkovStateChange(mk)
			}
		}
	}

	period := m.Clock() - m.LastAccountingTimestamp()
	if period < 0 {
		period = 0
	}
	for _, id := range m.RunningExes() {
		if exe, ok := m.ExeByID(id); ok {
			exe.Time += period
		}
	}
	for _, mk := range m.Markovs() {
		if mk.State == 3 {
			mk.Time[3] += period
		}
	}
	m.SetLastAccountingTimestamp(m.Clock())
}

func (s *Spy) promoteNewExe(m *model.Model, path string, pid int) {
	total, regions, ok := s.source.ReadMaps(pid)
	if !ok {
		// Process died between Scan and UpdateModel's reads: spec.md
		// treats a subsequent zero-size read as "process died, skip".
		return
	}
	if total < s.cfg.MinSize {
		m.MarkBadExe(path, total)
		return
	}

	pool := model.ClassifyPool(path, s.classify)
	exe := &model.Exe{Path: path, Pool: pool, UpdateTime: m.Clock()}

	var size int64
	for _, r := range regions {
		mp := m.InternMap(r.Path, r.Offset, r.Length)
		m.AddExeMap(exe, mp, 1.0)
		size += r.Length
	}
	exe.Size = size

	m.RegisterExe(exe, true, s.cfg.Cycle)

	pinfo := s.captureProcessInfo(pid, path, m.Clock())
	exe.RunningPIDs[pid] = pinfo
	if pinfo.UserInitiated {
		exe.RawLaunches++
	}
	m.MarkRunning(exe, m.LastRunningTimestamp())
}
