package procfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// statFieldsAfterComm reads /proc/<pid>/stat and returns every
// whitespace-separated field after the parenthesized comm field
// (field 2), indexed from 0 == state.
//
// comm can itself contain spaces or parens, so the only safe way to
// find where the fixed-format numeric fields resume is to locate the
// *last* ") " in the line and parse everything after it; matching
// fields before it (pid, comm) are never needed by this package.
func statFieldsAfterComm(procRoot string, pid int) ([]string, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%d/stat", procRoot, pid))
	if err != nil {
		return nil, err
	}
	line := strings.TrimRight(string(data), "\n")
	i := strings.LastIndex(line, ") ")
	if i < 0 {
		return nil, ErrNoStat
	}
	return strings.Fields(line[i+2:]), nil
}

// readParentPID parses field 4 (ppid) of /proc/<pid>/stat: fields[0]
// after comm is state, fields[1] is ppid.
func readParentPID(procRoot string, pid int) (int, error) {
	fields, err := statFieldsAfterComm(procRoot, pid)
	if err != nil {
		return 0, err
	}
	if len(fields) < 2 {
		return 0, ErrShortStat
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, ErrShortStat
	}
	return ppid, nil
}

// readExeBasename extracts the basename of /proc/<pid>/exe without
// following symlinks into the full sanitize/filter pipeline — used
// only by the user-initiated heuristic in internal/spy.
func readExeBasename(procRoot string, pid int) (string, error) {
	target, err := os.Readlink(fmt.Sprintf("%s/%d/exe", procRoot, pid))
	if err != nil {
		return "", err
	}
	i := strings.LastIndexByte(target, '/')
	if i < 0 {
		return target, nil
	}
	return target[i+1:], nil
}
