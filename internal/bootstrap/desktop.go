package bootstrap

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ScanDesktopEntries walks dirs (typically /usr/share/applications and
// ~/.local/share/applications) looking for *.desktop files, extracts
// each entry's Exec= command and resolves it to an absolute
// executable path via $PATH. Unreadable directories are skipped, not
// fatal: a cold box may simply not have one of them.
func ScanDesktopEntries(dirs []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".desktop") {
				continue
			}
			path, err := execFromDesktopFile(filepath.Join(dir, ent.Name()))
			if err != nil || path == "" {
				continue
			}
			found[path] = struct{}{}
		}
	}
	return found, nil
}

// execFromDesktopFile reads the first Exec= key under [Desktop Entry]
// and resolves it to an absolute path, stripping %f/%u-style field
// codes desktop files append.
func execFromDesktopFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	inEntry := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "[Desktop Entry]":
			inEntry = true
		case strings.HasPrefix(line, "[") && line != "[Desktop Entry]":
			inEntry = false
		case inEntry && strings.HasPrefix(line, "Exec="):
			cmd := strings.TrimPrefix(line, "Exec=")
			return resolveExecCommand(cmd), nil
		}
	}
	return "", sc.Err()
}

func resolveExecCommand(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	bin := fields[0]
	for _, code := range []string{"%f", "%F", "%u", "%U", "%d", "%D", "%n", "%N", "%i", "%c", "%k", "%v", "%m"} {
		bin = strings.TrimSuffix(bin, code)
	}
	if filepath.IsAbs(bin) {
		return bin
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return ""
	}
	return resolved
}
