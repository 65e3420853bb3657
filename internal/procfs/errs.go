package procfs

import "errors"

var (
	// ErrNoStat indicates /proc/<pid>/stat was empty or malformed.
	ErrNoStat = errors.New("procfs: malformed or empty stat")

	// ErrShortStat indicates /proc/<pid>/stat had fewer fields than
	// the ones this package parses.
	ErrShortStat = errors.New("procfs: short stat")

	// ErrNoMemInfo indicates /proc/meminfo was missing an expected key.
	ErrNoMemInfo = errors.New("procfs: incomplete meminfo")

	// ErrSkip is returned by internal helpers to signal a soft miss
	// (process exited mid-read, permission denied) that callers
	// should treat as "nothing to report this cycle", never as a
	// hard failure.
	ErrSkip = errors.New("procfs: skip")
)
