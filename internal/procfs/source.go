// Package procfs is the ProcSource component: a one-shot iterator
// over the live /proc process table plus on-demand readers for a
// pid's memory maps and the host's memory pressure. It is the only
// package in this repo that talks to the kernel process table
// directly.
package procfs

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MapRegion is a sanitized, filtered file-backed region read from a
// pid's /proc/<pid>/maps.
type MapRegion struct {
	Path   string
	Offset int64
	Length int64
}

// Visit is called once per live process found by ForEachProcess.
type Visit func(pid int, exePath string)

// Source is a ProcSource bound to a procfs root (normally "/proc",
// overridable in tests) and the daemon's own pid, which it must never
// report on itself.
type Source struct {
	Root      string
	SelfPID   int
	ExeFilter PrefixFilter
	MapFilter PrefixFilter
}

// New returns a Source reading from root, skipping selfPID.
func New(root string, selfPID int, exeFilter, mapFilter PrefixFilter) *Source {
	return &Source{Root: root, SelfPID: selfPID, ExeFilter: exeFilter, MapFilter: mapFilter}
}

// ForEachProcess walks every numeric entry under Root, resolves its
// executable path, sanitizes and filters it, and invokes visit for
// every surviving (pid, path) pair. Transient syscall failures (the
// process exited between readdir and readlink, permission denied) are
// silently skipped — they are not errors, per spec.md §7.
func (s *Source) ForEachProcess(visit Visit) error {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return fmt.Errorf("procfs: read %s: %w", s.Root, err)
	}
	for _, ent := range entries {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue // not a pid directory
		}
		if pid == s.SelfPID {
			continue
		}

		exePath, ok := s.resolveExePath(pid)
		if !ok {
			continue
		}

		sanitized, ok := Sanitize(exePath)
		if !ok {
			continue
		}
		if !s.ExeFilter.Accept(sanitized) {
			continue
		}
		visit(pid, sanitized)
	}
	return nil
}

// resolveExePath resolves /proc/<pid>/exe, falling back to the first
// NUL-separated argument of /proc/<pid>/cmdline (accepted only if it
// starts with "/") when the symlink read fails for any reason — some
// setuid binaries hide their exe symlink from unprivileged readers
// but still expose cmdline.
func (s *Source) resolveExePath(pid int) (string, bool) {
	link, err := os.Readlink(fmt.Sprintf("%s/%d/exe", s.Root, pid))
	if err == nil {
		return link, true
	}

	data, err := os.ReadFile(fmt.Sprintf("%s/%d/cmdline", s.Root, pid))
	if err != nil {
		return "", false
	}
	first, _, _ := strings.Cut(string(data), "\x00")
	if !strings.HasPrefix(first, "/") {
		return "", false
	}
	return first, true
}

// ExePath returns the raw (unsanitized) /proc/<pid>/exe target, used
// by the user-initiated heuristic in internal/spy to inspect a
// parent's executable without running it through the exe prefix
// filter.
func (s *Source) ExePath(pid int) (string, bool) {
	link, err := os.Readlink(fmt.Sprintf("%s/%d/exe", s.Root, pid))
	if err != nil {
		return "", false
	}
	return link, true
}

// ExeBasename returns the basename of /proc/<pid>/exe.
func (s *Source) ExeBasename(pid int) (string, bool) {
	name, err := readExeBasename(s.Root, pid)
	if err != nil {
		return "", false
	}
	return name, true
}

// GetParent parses field 4 of /proc/<pid>/stat. It returns ok=false
// if the process has exited or the stat file is unreadable/malformed
// — a soft miss, never an error the caller must handle.
func (s *Source) GetParent(pid int) (parent int, ok bool) {
	ppid, err := readParentPID(s.Root, pid)
	if err != nil {
		return 0, false
	}
	return ppid, true
}

// ReadMaps parses /proc/<pid>/maps, returning the total bytes mapped
// across every line that names a backing path (before sanitizing and
// filtering, used for the minsize threshold; anonymous regions are
// not counted) and the sanitized+filtered region list. If the read
// fails (process exited mid-read), it returns (0, nil, false) — a
// soft miss per spec.md's "treat as a soft miss, not an error".
func (s *Source) ReadMaps(pid int) (totalBytes int64, regions []MapRegion, ok bool) {
	f, err := os.Open(fmt.Sprintf("%s/%d/maps", s.Root, pid))
	if err != nil {
		return 0, nil, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		start, end, ok := parseAddrRange(fields[0])
		if !ok {
			continue
		}
		length := int64(end - start)
		if length <= 0 {
			continue
		}
		offset, err := strconv.ParseInt(fields[2], 16, 64)
		if err != nil {
			continue
		}

		var rawPath string
		if len(fields) >= 6 {
			rawPath = strings.Join(fields[5:], " ")
		}
		if rawPath == "" {
			continue
		}

		totalBytes += length

		sanitized, keep := Sanitize(rawPath)
		if !keep {
			continue
		}
		if !s.MapFilter.Accept(sanitized) {
			continue
		}
		regions = append(regions, MapRegion{Path: sanitized, Offset: offset, Length: length})
	}
	if err := sc.Err(); err != nil {
		return 0, nil, false
	}
	if totalBytes == 0 && len(regions) == 0 {
		// Empty read: process likely died between the two Spy reads.
		return 0, nil, false
	}
	return totalBytes, regions, true
}

func parseAddrRange(field string) (start, end uint64, ok bool) {
	lo, hi, found := strings.Cut(field, "-")
	if !found {
		return 0, 0, false
	}
	s, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return 0, 0, false
	}
	e, err := strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return 0, 0, false
	}
	return s, e, true
}

// GetMemStat parses /proc/meminfo (MemTotal, MemFree, Buffers,
// Cached) and /proc/vmstat (pgpgin, pgpgout) into a MemoryStat.
func (s *Source) GetMemStat() (MemoryStat, error) {
	info, err := s.readMemInfo()
	if err != nil {
		return MemoryStat{}, err
	}
	pageIn, pageOut := s.readVMStat()
	info.PageIn = pageIn
	info.PageOut = pageOut
	return info, nil
}

// MemoryStat mirrors model.MemoryStat; procfs stays free of a
// dependency on the model package so it can be tested and reused in
// isolation. Callers adapt it to model.MemoryStat at the boundary.
type MemoryStat struct {
	TotalKB, FreeKB, BuffersKB, CachedKB int64
	PageIn, PageOut                      int64
}

func (s *Source) readMemInfo() (MemoryStat, error) {
	f, err := os.Open(fmt.Sprintf("%s/meminfo", s.Root))
	if err != nil {
		return MemoryStat{}, err
	}
	defer f.Close()

	want := map[string]*int64{}
	var out MemoryStat
	want["MemTotal"] = &out.TotalKB
	want["MemFree"] = &out.FreeKB
	want["Buffers"] = &out.BuffersKB
	want["Cached"] = &out.CachedKB

	sc := bufio.NewScanner(f)
	seen := 0
	for sc.Scan() {
		key, val, found := strings.Cut(sc.Text(), ":")
		if !found {
			continue
		}
		dst, ok := want[key]
		if !ok {
			continue
		}
		fields := strings.Fields(val)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		*dst = n
		seen++
		if seen == len(want) {
			break
		}
	}
	if seen < len(want) {
		return MemoryStat{}, ErrNoMemInfo
	}
	return out, nil
}

// readVMStat best-effort parses pgpgin/pgpgout; missing values are
// not fatal (older kernels, containers without vmstat) so errors are
// swallowed and zero is returned.
func (s *Source) readVMStat() (pageIn, pageOut int64) {
	f, err := os.Open(fmt.Sprintf("%s/vmstat", s.Root))
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "pgpgin":
			pageIn = v
		case "pgpgout":
			pageOut = v
		}
	}
	return pageIn, pageOut
}
