package procfs

import "strings"

const prelinkMarker = ".#prelink#."

// Sanitize applies spec.md's path sanitization rules to a raw path
// pulled from /proc/<pid>/exe or /proc/<pid>/maps:
//
//   - paths not starting with "/" are pseudo-regions (stack, heap,
//     vdso, socket:[...], ...) and are rejected outright.
//   - a prelink relinker stashes the canonical name before the marker
//     ".#prelink#."; truncating there recovers it.
//   - paths still tagged "(deleted)" (the backing file was removed
//     while mapped) are rejected.
//
// It returns the sanitized path and whether it should be kept.
func Sanitize(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "/") {
		return "", false
	}
	path := raw
	if i := strings.Index(path, prelinkMarker); i >= 0 {
		path = path[:i]
	}
	if strings.Contains(path, "(deleted)") {
		return "", false
	}
	return path, true
}
