// Package config loads preheatd's INI-style configuration file and
// exposes it as a typed struct, following spec.md §6's option table.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the fully-resolved, typed configuration for one daemon
// instance. Field names track the INI option names in spec.md §6.
type Config struct {
	// [model]
	Cycle          float64
	UseCorrelation bool
	MinSize        int64

	// [system]
	MemTotal  float64
	MemFree   float64
	MemCached float64

	// [preheat]
	DoScan            bool
	DoPredict         bool
	Autosave          float64
	MapPrefix         string
	ExePrefix         string
	Processes         int
	SortStrategy      int
	ManualApps        string
	ExcludedPatterns  []string
	UserAppPaths      []string
}

// Default returns spec.md's documented defaults.
func Default() Config {
	return Config{
		Cycle:          20,
		UseCorrelation: true,
		MinSize:        2_000_000,

		MemTotal:  -10,
		MemFree:   50,
		MemCached: 0,

		DoScan:       true,
		DoPredict:    true,
		Autosave:     3600,
		MapPrefix:    "/usr/;/lib;/var/cache/;!/",
		ExePrefix:    "!/usr/sbin/;!/usr/local/sbin/;/usr/;!/",
		Processes:    30,
		SortStrategy: 3,
	}
}

// Load reads path as an INI file under [model]/[system]/[preheat]
// sections, overlaying values onto Default(). A missing file is not
// an error — callers run with documented defaults, matching spec.md's
// "fatal only on unparseable required config", not "absent config".
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: false}, path)
	if err != nil {
		if isNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	model := f.Section("model")
	cfg.Cycle = model.Key("cycle").MustFloat64(cfg.Cycle)
	cfg.UseCorrelation = model.Key("usecorrelation").MustBool(cfg.UseCorrelation)
	cfg.MinSize = model.Key("minsize").MustInt64(cfg.MinSize)

	system := f.Section("system")
	cfg.MemTotal = system.Key("memtotal").MustFloat64(cfg.MemTotal)
	cfg.MemFree = system.Key("memfree").MustFloat64(cfg.MemFree)
	cfg.MemCached = system.Key("memcached").MustFloat64(cfg.MemCached)

	preheat := f.Section("preheat")
	cfg.DoScan = preheat.Key("doscan").MustBool(cfg.DoScan)
	cfg.DoPredict = preheat.Key("dopredict").MustBool(cfg.DoPredict)
	cfg.Autosave = preheat.Key("autosave").MustFloat64(cfg.Autosave)
	cfg.MapPrefix = preheat.Key("mapprefix").MustString(cfg.MapPrefix)
	cfg.ExePrefix = preheat.Key("exeprefix").MustString(cfg.ExePrefix)
	cfg.Processes = preheat.Key("processes").MustInt(cfg.Processes)
	cfg.SortStrategy = preheat.Key("sortstrategy").MustInt(cfg.SortStrategy)
	cfg.ManualApps = preheat.Key("manualapps").MustString(cfg.ManualApps)
	cfg.ExcludedPatterns = splitSemicolon(preheat.Key("excluded_patterns").MustString(""))
	cfg.UserAppPaths = splitSemicolon(preheat.Key("user_app_paths").MustString(""))

	return cfg, nil
}

func splitSemicolon(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
