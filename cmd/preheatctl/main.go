//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ja7ad/preheatd/internal/config"
	"github.com/ja7ad/preheatd/internal/humanize"
	"github.com/ja7ad/preheatd/internal/stats"
)

func main() {
	root := &cobra.Command{
		Use:   "preheatctl",
		Short: "Control CLI for preheatd",
		Long: `preheatctl sends control signals to a running preheatd instance and
renders its statistics blob. It has no logic of its own beyond the
signal/stats-file contract preheatd exposes.

Copyright (c) 2024 Javad Rajabzadeh Inc. All rights reserved.`,
	}

	root.AddCommand(
		reloadCmd(),
		saveCmd(),
		stopCmd(),
		statsCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Tell the running daemon to reread its config (SIGHUP)",
		RunE:  func(cmd *cobra.Command, args []string) error { return signalDaemon(syscall.SIGHUP) },
	}
}

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Tell the running daemon to save its state now (SIGUSR2)",
		RunE:  func(cmd *cobra.Command, args []string) error { return signalDaemon(syscall.SIGUSR2) },
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to shut down cleanly (SIGTERM)",
		RunE:  func(cmd *cobra.Command, args []string) error { return signalDaemon(syscall.SIGTERM) },
	}
}

func statsCmd() *cobra.Command {
	var dumpFirst bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the daemon's last dumped statistics blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dumpFirst {
				if err := signalDaemon(syscall.SIGUSR1); err != nil {
					return err
				}
			}
			return printStats()
		},
	}
	cmd.Flags().BoolVar(&dumpFirst, "refresh", false, "signal the daemon to dump fresh stats before reading (SIGUSR1)")
	return cmd
}

// signalDaemon reads the pid preheatd wrote into its instance lock
// file and sends sig to it — the entire "control plane" spec.md
// specifies for this CLI.
func signalDaemon(sig syscall.Signal) error {
	paths := config.ResolveDefaultPaths()
	raw, err := os.ReadFile(paths.LockFile)
	if err != nil {
		return fmt.Errorf("preheatctl: read lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("preheatctl: malformed lock file: %w", err)
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("preheatctl: signal pid %d: %w", pid, err)
	}
	return nil
}

func printStats() error {
	paths := config.ResolveDefaultPaths()
	parsed, err := stats.ParseFile(paths.StatsFile)
	if err != nil {
		return fmt.Errorf("preheatctl: read stats: %w", err)
	}

	fmt.Printf("preheatd %s  uptime %.0fs  apps tracked %d\n", parsed.Version, parsed.UptimeSeconds, parsed.AppsTracked)
	fmt.Printf("pools: %d priority, %d observation\n", parsed.PoolPriority, parsed.PoolObservation)
	fmt.Printf("predictions: %d hits, %d misses (%.1f%% hit rate), %d preloads, %d memory-pressure events\n",
		parsed.Hits, parsed.Misses, parsed.HitRate*100, parsed.PreloadCount, parsed.MemoryPressureEvents)

	if len(parsed.TopApps) == 0 {
		return nil
	}
	fmt.Println("\ntop apps:")
	for _, a := range parsed.TopApps {
		printTopApp(a)
	}
	return nil
}

func printTopApp(a stats.ParsedTopApp) {
	colorFn := color.New(color.FgCyan).SprintFunc()
	if a.Pool == "PRIORITY" {
		colorFn = color.New(color.FgGreen).SprintFunc()
	}
	preloaded := ""
	if a.Preloaded {
		preloaded = " (preloaded)"
	}
	fmt.Printf("  %-8s %-40s weighted=%.2f raw=%d size=%s%s\n",
		colorFn(a.Pool), a.Name, a.Weighted, a.Raw, humanize.Bytes(a.SizeBytes), preloaded)
}
