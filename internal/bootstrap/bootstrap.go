// Package bootstrap seeds the Model at daemon startup (fresh or
// restored from a state file) from sources outside the live process
// table: installed desktop entries, shell history, and the
// administrator-maintained manual-apps whitelist. It delegates all
// learning to Model/Spy — every ingested path still has to prove
// itself a PRIORITY citizen via the normal classification rules, and
// nothing here ever opens maps or runs anything.
package bootstrap

import (
	"fmt"

	"github.com/ja7ad/preheatd/internal/model"
)

// Config lists the sources Seed consults. All fields are optional;
// a zero Config seeds nothing and leaves the Model empty.
type Config struct {
	DesktopDirs         []string
	ShellHistoryPath    string
	ManualAppsPath      string
	SidecarPath         string
	ExcludedPatterns    []string
	UserAppPathPrefixes []string
	InitialTimeToLeave  float64
}

// Seed ingests every discovered path into m and returns the
// ClassificationInputs built from the manual-apps/desktop/excluded
// sources, so the caller (the scheduler) can reuse the same inputs
// for classifying exes discovered later by live scanning.
func Seed(m *model.Model, cfg Config) (model.ClassificationInputs, error) {
	desktopExecs, err := ScanDesktopEntries(cfg.DesktopDirs)
	if err != nil {
		return model.ClassificationInputs{}, fmt.Errorf("bootstrap: scan desktop entries: %w", err)
	}

	manual, err := LoadManualAppsFile(cfg.ManualAppsPath)
	if err != nil {
		return model.ClassificationInputs{}, fmt.Errorf("bootstrap: load manual apps: %w", err)
	}
	sidecar, err := LoadSidecar(cfg.SidecarPath)
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

	classify := model.ClassificationInputs{
		ManualApps:          manualSet,
		HasDesktopEntry:     func(path string) bool { _, ok := desktopExecs[path]; return ok },
		ExcludedPatterns:    excluded,
		UserAppPathPrefixes: cfg.UserAppPathPrefixes,
	}

	seen := make(map[string]struct{})
	ingest := func(path string) {
		if path == "" {
			return
		}
		if _, already := seen[path]; already {
			return
		}
		seen[path] = struct{}{}
		pool := model.ClassifyPool(path, classify)
		m.IngestExe(path, pool, cfg.InitialTimeToLeave)
	}

	for path := range manualSet {
		ingest(path)
	}
	for path := range desktopExecs {
		ingest(path)
	}

	if cfg.ShellHistoryPath != "" {
		history, err := ScanShellHistory(cfg.ShellHistoryPath)
		if err != nil {
			return model.ClassificationInputs{}, fmt.Errorf("bootstrap: scan shell history: %w", err)
		}
		for path := range history {
			ingest(path)
		}
	}

	return classify, nil
}
