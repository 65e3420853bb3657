package bootstrap

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ScanShellHistory extracts distinct absolute executable paths from a
// shell history file (bash/zsh "PLAIN\ncommand" format — HISTTIMEFORMAT
// timestamp lines beginning with '#' are skipped). Each history
// command's first word is resolved via $PATH the same way a desktop
// entry's Exec= is, so a user who has typed "htop" at a shell seeds
// the same path ScanDesktopEntries would have found for a launcher.
func ScanShellHistory(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	defer f.Close()

	found := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		resolved := resolveHistoryWord(fields[0])
		if resolved != "" {
			found[resolved] = struct{}{}
		}
	}
	return found, sc.Err()
}

func resolveHistoryWord(word string) string {
	if strings.ContainsAny(word, "|;&$`(){}") {
		return ""
	}
	if filepath.IsAbs(word) {
		if st, err := os.Stat(word); err == nil && !st.IsDir() {
			return word
		}
		return ""
	}
	resolved, err := exec.LookPath(word)
	if err != nil {
		return ""
	}
	return resolved
}
