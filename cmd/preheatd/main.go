//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ja7ad/preheatd/internal/bootstrap"
	"github.com/ja7ad/preheatd/internal/config"
	"github.com/ja7ad/preheatd/internal/daemonlog"
	"github.com/ja7ad/preheatd/internal/model"
	"github.com/ja7ad/preheatd/internal/procfs"
	"github.com/ja7ad/preheatd/internal/readahead"
	"github.com/ja7ad/preheatd/internal/scheduler"
	"github.com/ja7ad/preheatd/internal/spy"
	"github.com/ja7ad/preheatd/internal/statestore"
)

// version is overridden at build time via -ldflags.
var version = "dev"

type opts struct {
	configPath string
	foreground bool
	logLevel   string
	showVer    bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "preheatd",
		Short: "Adaptive page-cache pre-warming daemon",
		Long: `preheatd watches the running process table, learns which executables
and the files they map tend to launch together, and pre-warms the
kernel page cache ahead of the next predicted launch.

Copyright (c) 2024 Javad Rajabzadeh Inc. All rights reserved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.showVer {
				fmt.Println(version)
				return nil
			}
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVar(&o.configPath, "config", "", "path to preheatd.ini (empty: built-in defaults, no file is read)")
	root.Flags().BoolVar(&o.foreground, "foreground", false, "log human-readable text to stderr instead of JSON")
	root.Flags().StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	root.Flags().BoolVar(&o.showVer, "version", false, "print the version and exit")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	logger, err := daemonlog.Setup(daemonlog.Options{Level: o.logLevel, Foreground: o.foreground})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	paths := config.ResolveDefaultPaths()

	lock, err := procfs.AcquireInstanceLock(paths.LockFile)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer lock.Release()

	m, err := statestore.LoadFile(paths.StateFile)
	if err != nil {
		logger.Warn("state file unreadable, starting clean", "err", err)
		m = model.New()
	}

	bootCfg := bootstrap.Config{
		DesktopDirs:         []string{"/usr/share/applications", "/usr/local/share/applications"},
		ManualAppsPath:      cfg.ManualApps,
		ExcludedPatterns:    cfg.ExcludedPatterns,
		UserAppPathPrefixes: cfg.UserAppPaths,
		InitialTimeToLeave:  cfg.Cycle,
	}
	classify, err := bootstrap.Seed(m, bootCfg)
	if err != nil {
		logger.Warn("bootstrap seeding failed, continuing with what the state file had", "err", err)
	}

	selfPID := os.Getpid()
	exeFilter := procfs.ParsePrefixFilter(cfg.ExePrefix)
	mapFilter := procfs.ParsePrefixFilter(cfg.MapPrefix)
	source := procfs.New("/proc", selfPID, exeFilter, mapFilter)

	spyCfg := spy.DefaultConfig()
	spyCfg.MinSize = cfg.MinSize
	spyCfg.Cycle = cfg.Cycle
	sp := spy.New(spyCfg, source, classify, hasDesktopEntryChecker(bootCfg))

	sched := scheduler.New(cfg, classify, scheduler.Deps{
		Model:      m,
		Spy:        sp,
		MemSource:  source,
		Resolver:   procfs.InodeBlockMapper{UseFIBMAP: readahead.ParseStrategy(cfg.SortStrategy) == readahead.StrategyBlock},
		Prefetcher: readahead.KernelPrefetcher{},
		Logger:     logger,
		ConfigPath: o.configPath,
		StatePath:  paths.StateFile,
		StatsPath:  paths.StatsFile,
		Version:    version,
		Bootstrap:  bootCfg,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)
	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	saveCh := make(chan os.Signal, 1)
	signal.Notify(saveCh, syscall.SIGUSR2)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				sched.TriggerReloadConfig()
			case <-dumpCh:
				sched.TriggerDumpStats()
			case <-saveCh:
				sched.TriggerSaveState()
			}
		}
	}()

	logger.Info("preheatd starting", "version", version, "cycle", cfg.Cycle)
	return sched.Run(ctx)
}

func hasDesktopEntryChecker(cfg bootstrap.Config) func(string) bool {
	entries, _ := bootstrap.ScanDesktopEntries(cfg.DesktopDirs)
	return func(path string) bool {
		_, ok := entries[path]
		return ok
	}
}
