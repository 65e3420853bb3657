// Package stats renders the textual statistics blob spec.md §6
// defines for consumption by the control CLI.
package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ja7ad/preheatd/internal/model"
)

// Counters tracks the daemon-lifetime counts that aren't derivable
// from the Model alone (prediction hits/misses, memory-pressure
// events observed since start).
type Counters struct {
	Hits                 int64
	Misses               int64
	PreloadCount         int64
	MemoryPressureEvents int64
}

// HitRate returns Hits/(Hits+Misses), or 0 if there have been no
// observations yet.
func (c Counters) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total)
}

// TopApp is one ranked entry in the blob's top_app_<i> list.
type TopApp struct {
	Name      string
	Weighted  float64
	Raw       int
	Preloaded bool
	Pool      model.Pool
	SizeBytes int64
}

// Snapshot is everything the blob reports.
type Snapshot struct {
	Version       string
	UptimeSeconds float64
	Counters      Counters
	TopApps       []TopApp
}

// Build assembles a Snapshot from the live Model: the top-N list is
// every Exe ranked by weighted_launches descending. The pool
// breakdown is counted by Write.
func Build(m *model.Model, version string, uptime float64, counters Counters, preloaded map[string]struct{}, topN int) Snapshot {
	exes := m.Exes()
	top := make([]TopApp, 0, len(exes))
	for _, e := range exes {
		_, isPreloaded := preloaded[e.Path]
		top = append(top, TopApp{
			Name:      e.Path,
			Weighted:  e.WeightedLaunches,
			Raw:       e.RawLaunches,
			Preloaded: isPreloaded,
			Pool:      e.Pool,
			SizeBytes: e.Size,
		})
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Weighted > top[j].Weighted })
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}
	return Snapshot{
		Version:       version,
		UptimeSeconds: uptime,
		Counters:      counters,
		TopApps:       top,
	}
}

// Write renders the blob to w. One key=value per line,
// in a fixed order so diffing two snapshots by eye is easy.
func Write(w io.Writer, m *model.Model, snap Snapshot) error {
	priority, observation := 0, 0
	for _, e := range m.Exes() {
		if e.Pool == model.PoolPriority {
			priority++
		} else {
			observation++
		}
	}

	lines := []string{
		fmt.Sprintf("version=%s", snap.Version),
		fmt.Sprintf("uptime_seconds=%.0f", snap.UptimeSeconds),
		fmt.Sprintf("apps_tracked=%d", len(m.Exes())),
		fmt.Sprintf("pool_priority=%d", priority),
		fmt.Sprintf("pool_observation=%d", observation),
		fmt.Sprintf("hits=%d", snap.Counters.Hits),
		fmt.Sprintf("misses=%d", snap.Counters.Misses),
		fmt.Sprintf("hit_rate=%.4f", snap.Counters.HitRate()),
		fmt.Sprintf("preload_count=%d", snap.Counters.PreloadCount),
		fmt.Sprintf("memory_pressure_events=%d", snap.Counters.MemoryPressureEvents),
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	for i, a := range snap.TopApps {
		line := fmt.Sprintf("top_app_%d=%s:%g:%d:%t:%s:%d", i, a.Name, a.Weighted, a.Raw, a.Preloaded, a.Pool.String(), a.SizeBytes)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// DumpAtomic writes the blob to path via a sibling temp file plus
// rename, the same atomicity rule spec.md §5 applies to the state
// file.
func DumpAtomic(path string, m *model.Model, snap Snapshot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".stats-*.tmp")
	if err != nil {
		return fmt.Errorf("stats: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := Write(tmp, m, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("stats: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stats: close temp: %w", err)
	}
	return os.Rename(tmpPath, path)
}
