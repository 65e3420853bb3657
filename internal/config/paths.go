package config

import (
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
)

// vendor/application tags passed to xdg.New, mirroring the
// (vendor, projectName) pair lazydocker's app_config.go uses to scope
// its XDG directories.
const (
	xdgVendor = "preheatd"
	xdgApp    = "preheatd"
)

// DefaultPaths resolves the state file, instance lock and stats blob
// locations: all three live under the XDG cache dir (they are
// disposable, rebuildable working data).
type DefaultPaths struct {
	StateFile string
	LockFile  string
	StatsFile string
}

// ResolveDefaultPaths computes DefaultPaths from the process's XDG
// base directories.
func ResolveDefaultPaths() DefaultPaths {
	dirs := xdg.New(xdgVendor, xdgApp)
	cache := dirs.CacheHome()
	return DefaultPaths{
		StateFile: filepath.Join(cache, "state.db"),
		LockFile:  filepath.Join(cache, "preheatd.lock"),
		StatsFile: filepath.Join(cache, "stats.txt"),
	}
}
