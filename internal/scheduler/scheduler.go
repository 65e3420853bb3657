// Package scheduler runs the single-threaded cooperative loop spec.md
// §5 describes: one goroutine drives scan, update_model, predict,
// readahead and autosave in strict phase order, so the Model never
// needs a lock. External control edges (reload-config, dump-stats,
// save-state, terminate) arrive as channel sends from cmd/preheatd's
// signal handler and are drained in the same select loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ja7ad/preheatd/internal/bootstrap"
	"github.com/ja7ad/preheatd/internal/config"
	"github.com/ja7ad/preheatd/internal/model"
	"github.com/ja7ad/preheatd/internal/numeric"
	"github.com/ja7ad/preheatd/internal/procfs"
	"github.com/ja7ad/preheatd/internal/prophet"
	"github.com/ja7ad/preheatd/internal/readahead"
	"github.com/ja7ad/preheatd/internal/spy"
	"github.com/ja7ad/preheatd/internal/statestore"
	"github.com/ja7ad/preheatd/internal/stats"
)

// pressureSpikeFactor is how far a cycle's pgpgout delta must exceed
// the running baseline before it counts as a memory-pressure event.
const pressureSpikeFactor = 3.0

// MemStatSource is the subset of procfs.Source that reading memory
// pressure needs, narrowed so tests can substitute a fake.
type MemStatSource interface {
	GetMemStat() (procfs.MemoryStat, error)
}

// Deps bundles the Scheduler's collaborators. ConfigPath, StatePath
// and StatsPath are file locations; everything else is already
// constructed (cmd/preheatd wires procfs.Source, spy.New et al. and
// passes them in) so Scheduler itself never touches the kernel
// directly.
type Deps struct {
	Model      *model.Model
	Spy        *spy.Spy
	MemSource  MemStatSource
	Resolver   readahead.KeyResolver
	Prefetcher readahead.Prefetcher
	Logger     *slog.Logger

	ConfigPath string
	StatePath  string
	StatsPath  string
	Version    string

	Bootstrap bootstrap.Config
}

// Scheduler owns the live Config and runs the cooperative loop.
type Scheduler struct {
	deps Deps
	cfg  config.Config

	classify     model.ClassificationInputs
	lastAutosave float64
	startClock   float64

	counters stats.Counters

	// pendingPredictions holds the exe paths Predict flagged as likely
	// to launch this cycle; the next runScan resolves each into a hit
	// or a miss once the live process table has had a chance to catch
	// up.
	pendingPredictions map[string]struct{}

	// lastPreloaded is the set of exe paths whose maps were issued for
	// readahead in the most recent predict phase, surfaced verbatim by
	// doDumpStats as each top app's "preloaded" flag.
	lastPreloaded map[string]struct{}

	// pageOutEMA tracks a smoothed baseline of pgpgout activity per
	// half-cycle; a delta that spikes well above it counts as a
	// memory-pressure event.
	pageOutEMA  *numeric.EMA
	lastPageOut uint64
	havePageOut bool

	reloadCh    chan struct{}
	dumpStatsCh chan struct{}
	saveStateCh chan struct{}
}

// New constructs a Scheduler from an already-loaded Config and Deps.
// classify is the ClassificationInputs bootstrap.Seed returned (or
// the zero value if seeding failed).
func New(cfg config.Config, classify model.ClassificationInputs, deps Deps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Logger = logger
	return &Scheduler{
		deps:        deps,
		cfg:         cfg,
		classify:    classify,
		startClock:  deps.Model.Clock(),
		pageOutEMA:  numeric.NewEMA(0.3),
		reloadCh:    make(chan struct{}, 1),
		dumpStatsCh: make(chan struct{}, 1),
		saveStateCh: make(chan struct{}, 1),
	}
}

// TriggerReloadConfig, TriggerDumpStats and TriggerSaveState are
// called from the process's signal handler; they are non-blocking and
// safe to call from any goroutine.
func (s *Scheduler) TriggerReloadConfig() { nonBlockingSend(s.reloadCh) }
func (s *Scheduler) TriggerDumpStats()    { nonBlockingSend(s.dumpStatsCh) }
func (s *Scheduler) TriggerSaveState()    { nonBlockingSend(s.saveStateCh) }

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run drives the cooperative loop until ctx is cancelled. On a clean
// cancellation it drains outstanding work, runs one final autosave
// and returns nil; it never returns a non-nil error for a graceful
// stop — only for a startup-class failure encountered mid-run (none
// currently exist, but the signature leaves room for one).
func (s *Scheduler) Run(ctx context.Context) error {
	half := halfCycle(s.cfg.Cycle)
	timer := time.NewTimer(0)
	defer timer.Stop()

	scanPhase := true
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case <-s.reloadCh:
			s.doReloadConfig()

		case <-s.dumpStatsCh:
			s.doDumpStats()

		case <-s.saveStateCh:
			s.doSaveState()

		case <-timer.C:
			s.deps.Model.Advance(s.cfg.Cycle / 2)
			if scanPhase {
				s.runScan()
			} else {
				s.runUpdateAndPredict()
				s.maybeAutosave()
			}
			scanPhase = !scanPhase
			timer.Reset(half)
		}
	}
}

func halfCycle(cycleSeconds float64) time.Duration {
	if cycleSeconds <= 0 {
		cycleSeconds = 1
	}
	return time.Duration(cycleSeconds / 2 * float64(time.Second))
}

func (s *Scheduler) runScan() {
	if !s.cfg.DoScan {
		return
	}
	if err := s.deps.Spy.Scan(s.deps.Model); err != nil {
		s.deps.Logger.Warn("scan failed", "err", err)
	}
	s.evaluatePendingPredictions()
}

// evaluatePendingPredictions resolves the previous cycle's predicted
// exe paths against the process table runScan just refreshed: a path
// now running is a hit, anything else is a miss.
func (s *Scheduler) evaluatePendingPredictions() {
	if len(s.pendingPredictions) == 0 {
		return
	}
	for path := range s.pendingPredictions {
		e, ok := s.deps.Model.ExeByPath(path)
		if ok && s.deps.Model.ExeIsRunning(e) {
			s.counters.Hits++
		} else {
			s.counters.Misses++
		}
	}
	s.pendingPredictions = nil
}

func (s *Scheduler) runUpdateAndPredict() {
	s.deps.Spy.UpdateModel(s.deps.Model)
	if !s.cfg.DoPredict {
		return
	}

	mem, err := s.readMemStat()
	if err != nil {
		s.deps.Logger.Warn("read memory stat failed, skipping predict", "err", err)
		return
	}
	s.detectMemoryPressure(mem)

	maps := prophet.Predict(s.deps.Model, s.prophetConfig(), mem)
	s.pendingPredictions = collectPredictedPaths(s.deps.Model)
	if len(maps) == 0 {
		s.lastPreloaded = nil
		return
	}

	strategy := readahead.ParseStrategy(s.cfg.SortStrategy)
	wantKeys := s.deps.Resolver != nil && (strategy == readahead.StrategyInode || strategy == readahead.StrategyBlock)
	regions := make([]readahead.Region, len(maps))
	for i, mp := range maps {
		// Cache the sort key on the Map so later cycles skip the lookup.
		if wantKeys && mp.Block < 0 {
			if k, err := s.deps.Resolver.Key(mp.Path); err == nil {
				mp.Block = k
			}
		}
		regions[i] = readahead.Region{Path: mp.Path, Offset: mp.Offset, Length: mp.Length, Block: mp.Block}
	}
	issued := readahead.Issue(s.readaheadConfig(), regions, s.deps.Resolver, s.deps.Prefetcher, s.deps.Logger)
	s.counters.PreloadCount += int64(issued)
	s.lastPreloaded = exePathsOwningMaps(s.deps.Model, maps)
}

// exePathsOwningMaps returns the path of every Exe that owns at least
// one of maps, used to flag which top apps this cycle's readahead
// actually touched.
func exePathsOwningMaps(m *model.Model, maps []*model.Map) map[string]struct{} {
	wanted := make(map[model.MapID]struct{}, len(maps))
	for _, mp := range maps {
		wanted[mp.ID] = struct{}{}
	}
	paths := make(map[string]struct{})
	for _, e := range m.Exes() {
		for _, em := range e.ExeMaps {
			if _, ok := wanted[em.Map]; ok {
				paths[e.Path] = struct{}{}
				break
			}
		}
	}
	return paths
}

// collectPredictedPaths reads prophet.Predict's per-exe verdict back
// off the Model: a negative LnProb on a not-yet-running exe is the
// same "likely to launch" signal selectUnderBudget acts on, just
// before it gets translated into Maps.
func collectPredictedPaths(m *model.Model) map[string]struct{} {
	var paths map[string]struct{}
	for _, e := range m.Exes() {
		if e.LnProb >= 0 || m.ExeIsRunning(e) {
			continue
		}
		if paths == nil {
			paths = make(map[string]struct{})
		}
		paths[e.Path] = struct{}{}
	}
	return paths
}

// detectMemoryPressure tracks pgpgout activity across cycles. A delta
// well above the running baseline means the kernel is pushing pages
// out under pressure, which is exactly when a readahead issued this
// cycle is least likely to stick in cache.
func (s *Scheduler) detectMemoryPressure(mem model.MemoryStat) {
	current := uint64(mem.PageOut)
	if !s.havePageOut {
		s.lastPageOut = current
		s.havePageOut = true
		return
	}
	delta := numeric.DeltaU64(current, s.lastPageOut)
	s.lastPageOut = current

	baseline := s.pageOutEMA.Value()
	s.pageOutEMA.Next(float64(delta))
	if baseline > 0 && float64(delta) > baseline*pressureSpikeFactor {
		s.counters.MemoryPressureEvents++
		s.deps.Logger.Warn("memory pressure spike detected", "pgpgout_delta", delta, "baseline", baseline)
	}
}

func (s *Scheduler) readMemStat() (model.MemoryStat, error) {
	raw, err := s.deps.MemSource.GetMemStat()
	if err != nil {
		return model.MemoryStat{}, fmt.Errorf("scheduler: read meminfo: %w", err)
	}
	return model.MemoryStat{
		TotalKB:   raw.TotalKB,
		FreeKB:    raw.FreeKB,
		BuffersKB: raw.BuffersKB,
		CachedKB:  raw.CachedKB,
		PageIn:    raw.PageIn,
		PageOut:   raw.PageOut,
	}, nil
}

func (s *Scheduler) prophetConfig() prophet.Config {
	return prophet.Config{
		UseCorrelation: s.cfg.UseCorrelation,
		Cycle:          s.cfg.Cycle,
		ManualApps:     s.classify.ManualApps,
		MemTotalPct:    s.cfg.MemTotal,
		MemFreePct:     s.cfg.MemFree,
		MemCachedPct:   s.cfg.MemCached,
	}
}

func (s *Scheduler) readaheadConfig() readahead.Config {
	return readahead.Config{
		Strategy: readahead.ParseStrategy(s.cfg.SortStrategy),
		MaxProcs: s.cfg.Processes,
	}
}

// maybeAutosave fires StateStore.save once cfg.Autosave seconds of
// Model clock have elapsed since the last save — checked only between
// cycles (right after update_model+predict), matching spec.md's "never
// overlapping a scan" rule.
func (s *Scheduler) maybeAutosave() {
	if s.cfg.Autosave <= 0 {
		return
	}
	if s.deps.Model.Clock()-s.lastAutosave < s.cfg.Autosave {
		return
	}
	s.doSaveState()
}

func (s *Scheduler) doSaveState() {
	if s.deps.StatePath == "" {
		return
	}
	if err := statestore.SaveAtomic(s.deps.StatePath, s.deps.Model); err != nil {
		s.deps.Logger.Warn("save state failed", "err", err)
		return
	}
	s.lastAutosave = s.deps.Model.Clock()
}

// doReloadConfig re-reads the INI file, re-seeds the bootstrap
// classification sources (desktop entries, manual-apps whitelist) and
// re-evaluates every existing Exe's pool against the fresh inputs.
// Learned counts are never touched.
func (s *Scheduler) doReloadConfig() {
	cfg, err := config.Load(s.deps.ConfigPath)
	if err != nil {
		s.deps.Logger.Warn("reload-config failed, keeping previous config", "err", err)
		return
	}

	bcfg := s.deps.Bootstrap
	bcfg.ManualAppsPath = cfg.ManualApps
	bcfg.ExcludedPatterns = cfg.ExcludedPatterns
	bcfg.UserAppPathPrefixes = cfg.UserAppPaths
	bcfg.InitialTimeToLeave = cfg.Cycle

	classify, err := rebuildClassification(bcfg)
	if err != nil {
		s.deps.Logger.Warn("reload-config: re-resolving manual apps failed", "err", err)
		return
	}

	s.cfg = cfg
	s.classify = classify
	s.deps.Spy.SetClassification(classify)
	s.deps.Model.ReclassifyPool(classify, cfg.Cycle)
	s.deps.Logger.Info("config reloaded")
}

// rebuildClassification re-derives ClassificationInputs the same way
// bootstrap.Seed does, without re-ingesting any exe: reload-config
// must never register new Exes, only reclassify existing ones.
func rebuildClassification(cfg bootstrap.Config) (model.ClassificationInputs, error) {
	desktopExecs, err := bootstrap.ScanDesktopEntries(cfg.DesktopDirs)
	if err != nil {
		return model.ClassificationInputs{}, err
	}
	manual, err := bootstrap.LoadManualAppsFile(cfg.ManualAppsPath)
	if err != nil {
		return model.ClassificationInputs{}, err
	}
	sidecar, err := bootstrap.LoadSidecar(cfg.SidecarPath)
	if err != nil {
		return model.ClassificationInputs{}, err
	}

	manualSet := make(map[string]struct{}, len(manual)+len(sidecar.ManualApps))
	for _, p := range manual {
		manualSet[p] = struct{}{}
	}
	for _, p := range sidecar.ManualApps {
		manualSet[p] = struct{}{}
	}
	excluded := append(append([]string{}, cfg.ExcludedPatterns...), sidecar.ExcludedPatterns...)

	return model.ClassificationInputs{
		ManualApps:          manualSet,
		HasDesktopEntry:     func(path string) bool { _, ok := desktopExecs[path]; return ok },
		ExcludedPatterns:    excluded,
		UserAppPathPrefixes: cfg.UserAppPathPrefixes,
	}, nil
}

func (s *Scheduler) doDumpStats() {
	if s.deps.StatsPath == "" {
		return
	}
	snap := stats.Build(s.deps.Model, s.deps.Version, s.deps.Model.Clock()-s.startClock, s.counters, s.lastPreloaded, 20)
	if err := stats.DumpAtomic(s.deps.StatsPath, s.deps.Model, snap); err != nil {
		s.deps.Logger.Warn("dump-stats failed", "err", err)
	}
}

// shutdown implements spec.md §5's graceful-stop sequence: finish the
// phase in flight (the caller only reaches here between select
// iterations, so nothing is half-done), then run one final autosave.
func (s *Scheduler) shutdown() {
	s.deps.Logger.Info("shutting down")
	s.doSaveState()
}
