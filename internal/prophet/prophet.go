// Package prophet implements the prediction engine: turning the
// Model's learned Markov tables and exe/map linkage into a ranked,
// memory-budget-bounded list of Maps worth pre-warming this cycle.
package prophet

import (
	"math"
	"sort"

	"github.com/ja7ad/preheatd/internal/model"
)

// Config holds the [model]/[system] tunables Predict needs.
type Config struct {
	UseCorrelation bool
	Cycle          float64 // seconds, same cycle value Spy seeds new Markovs with

	ManualApps map[string]struct{}

	MemTotalPct  float64 // default -10
	MemFreePct   float64 // default 50
	MemCachedPct float64 // default 0
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		UseCorrelation: true,
		Cycle:          20,
		MemTotalPct:    -10,
		MemFreePct:     50,
		MemCachedPct:   0,
	}
}

// Predict runs one full prediction cycle over m and returns the
// budget-bounded, highest-need-first slice of Maps to hand to
// Readahead. It mutates every Exe's and Map's transient LnProb field.
func Predict(m *model.Model, cfg Config, mem model.MemoryStat) []*model.Map {
	resetLnProb(m)
	applyManualBoost(m, cfg)
	applyMarkovInference(m, cfg)
	applyExesOverMaps(m)
	return selectUnderBudget(m, cfg, mem)
}

func resetLnProb(m *model.Model) {
	for _, e := range m.Exes() {
		e.LnProb = 0
	}
	for _, mp := range m.Maps() {
		mp.LnProb = 0
	}
}

func applyManualBoost(m *model.Model, cfg Config) {
	if len(cfg.ManualApps) == 0 {
		return
	}
	for path := range cfg.ManualApps {
		e, ok := m.ExeByPath(path)
		if !ok || m.ExeIsRunning(e) {
			continue
		}
		e.LnProb = -10.0
	}
}

// applyMarkovInference is step 3, "Markov-over-exes": for every
// Markov with at least one observed departure from its current
// state, project each non-running side's probability of becoming
// active before the next cycle and fold it into that exe's lnprob.
func applyMarkovInference(m *model.Model, cfg Config) {
	for _, mk := range m.Markovs() {
		state := mk.State
		if mk.Weight[state][state] <= 0 {
			continue
		}

		corr := 1.0
		if cfg.UseCorrelation {
			corr = math.Abs(regularizedCorrelation(mk.Weight, mk.Time))
		}

		a, aok := m.ExeByID(mk.A)
		b, bok := m.ExeByID(mk.B)
		if !aok || !bok {
			continue
		}

		aRunning := state&1 != 0
		bRunning := state&2 != 0

		if !aRunning {
			applySide(a, mk, state, 1, corr, cfg.Cycle)
		}
		if !bRunning {
			applySide(b, mk, state, 2, corr, cfg.Cycle)
		}
	}
}

func applySide(y *model.Exe, mk *model.Markov, state, yState int, corr, cycle float64) {
	timeToLeave := mk.TimeToLeave[state]
	if timeToLeave <= 1 {
		return
	}
	pStateChange := 1 - math.Exp(-1.5*cycle/timeToLeave)
	pYNext := (mk.Weight[state][yState] + mk.Weight[state][3]) / (mk.Weight[state][state] + 0.01)
	pRuns := corr * pStateChange * pYNext
	if pRuns <= 0 {
		pRuns = 1e-9
	}
	if pRuns >= 1 {
		pRuns = 1 - 1e-9
	}
	y.LnProb += math.Log(1 - pRuns)
}

// applyExesOverMaps is step 4: propagate each exe's lnprob onto the
// maps it owns, discouraging maps of already-running (already in page
// cache) exes.
func applyExesOverMaps(m *model.Model) {
	for _, e := range m.Exes() {
		running := m.ExeIsRunning(e)
		for _, em := range e.ExeMaps {
			mp, ok := m.MapByID(em.Map)
			if !ok {
				continue
			}
			if running {
				mp.LnProb += 1
			} else {
				mp.LnProb += e.LnProb
			}
		}
	}
}

// selectUnderBudget is steps 5-6: sort ascending by lnprob (most
// negative = most needed first) and greedily collect maps while both
// lnprob < 0 and the remaining budget covers the map's rounded-up KB
// size.
func selectUnderBudget(m *model.Model, cfg Config, mem model.MemoryStat) []*model.Map {
	maps := append([]*model.Map(nil), m.Maps()...)
	sort.SliceStable(maps, func(i, j int) bool { return maps[i].LnProb < maps[j].LnProb })

	budget := computeBudgetKB(cfg, mem)
	var selected []*model.Map
	for _, mp := range maps {
		if mp.LnProb >= 0 {
			break
		}
		need := ceilDivKB(mp.Length)
		if need > budget {
			break
		}
		budget -= need
		selected = append(selected, mp)
	}
	return selected
}

// computeBudgetKB follows spec.md's exact grouping: the total/free
// terms are clamped to non-negative together, then the cached term is
// added outside that floor.
func computeBudgetKB(cfg Config, mem model.MemoryStat) int64 {
	total := clampPct(cfg.MemTotalPct) * float64(mem.TotalKB) / 100
	free := clampPct(cfg.MemFreePct) * float64(mem.FreeKB) / 100
	cached := clampPct(cfg.MemCachedPct) * float64(mem.CachedKB) / 100

	floored := total + free
	if floored < 0 {
		floored = 0
	}
	budget := floored + cached
	if budget < 0 {
		budget = 0
	}
	return int64(budget)
}

func clampPct(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

func ceilDivKB(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}
	return (bytes + 1023) / 1024
}
