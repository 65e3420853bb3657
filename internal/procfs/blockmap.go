package procfs

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BlockMapper resolves the physical-block-or-inode key Readahead's
// INODE/BLOCK sort strategies cache into Map.Block. spec.md treats
// the true physical-block ioctl as an external collaborator: "callers
// may supply a stub returning inode numbers". InodeBlockMapper below
// is that stub — a real, working inode implementation — that also
// tries the FIBMAP ioctl (UseFIBMAP) for callers that want the
// stronger ordering when the kernel allows it.
type BlockMapper interface {
	// Key returns a sort key for path: ideally the first physical
	// block number backing the file, falling back to the inode
	// number when the platform ioctl is unavailable or unprivileged.
	Key(path string) (int64, error)
}

// InodeBlockMapper stats each path to resolve its inode number, and
// optionally attempts the Linux FIBMAP ioctl for a true physical
// block key when useFIBMAP is set.
type InodeBlockMapper struct {
	UseFIBMAP bool
}

func (m InodeBlockMapper) Key(path string) (int64, error) {
	f, err := OpenForPrefetch(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if m.UseFIBMAP {
		if block, err := fibmap(f); err == nil {
			return block, nil
		}
		// Fall through to inode on any ioctl failure (not privileged,
		// not a block device backed filesystem, ...).
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, err
	}
	return int64(st.Ino), nil
}

// fibmap resolves the physical block number backing logical block 0
// of an already-open file via the FIBMAP ioctl. This requires
// CAP_SYS_RAWIO on modern kernels and is expected to fail under an
// unprivileged daemon; BLOCK sort strategy falls back to the inode
// key in that case, per spec.md §4.5.
func fibmap(f *os.File) (int64, error) {
	var block int32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(unix.FIBMAP), uintptr(unsafe.Pointer(&block)))
	if errno != 0 {
		return 0, errno
	}
	return int64(block), nil
}
