package procfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenForPrefetch opens path the way spec.md's Readahead issuance
// requires: read-only, no controlling tty, not following a trailing
// symlink component, and with O_NOATIME so the prefetch itself
// doesn't dirty the inode's atime under page-cache pressure.
//
// O_NOATIME can fail with EPERM when the caller doesn't own the file
// and isn't privileged; that is swallowed and the open is retried
// without it, since atime avoidance is an optimization, not a
// correctness requirement.
func OpenForPrefetch(path string) (*os.File, error) {
	flags := unix.O_RDONLY | unix.O_NOCTTY | unix.O_NOFOLLOW | unix.O_NOATIME
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		fd, err = unix.Open(path, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NOFOLLOW, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("procfs: open %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

// Prefetch issues the kernel page-cache prefetch advisory
// (posix_fadvise WILLNEED) for [offset, offset+length) on an already
// open file.
func Prefetch(f *os.File, offset, length int64) error {
	if length <= 0 {
		return nil
	}
	return unix.Fadvise(int(f.Fd()), offset, length, unix.FADV_WILLNEED)
}
