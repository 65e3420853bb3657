package procfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// InstanceLock is the advisory PID/lock file that enforces single-
// daemon ownership of the state directory (spec.md §5, "Shared
// resources"). It is held for the process lifetime and released
// implicitly on exit, or explicitly via Release.
type InstanceLock struct {
	f *os.File
}

// AcquireInstanceLock opens (creating if needed) path and takes a
// non-blocking exclusive flock on it, writing the current pid as its
// contents. A held lock returns an error the caller should treat as
// the fatal "lock held by another instance" startup condition from
// spec.md §7.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("procfs: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("procfs: lock held by another instance: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		f.Close()
		return nil, err
	}
	return &InstanceLock{f: f}, nil
}

// Release drops the flock and closes the lock file.
func (l *InstanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
