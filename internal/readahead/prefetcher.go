package readahead

import "github.com/ja7ad/preheatd/internal/procfs"

// KernelPrefetcher adapts procfs's open+fadvise primitives to the
// Prefetcher interface Issue drives.
type KernelPrefetcher struct{}

func (KernelPrefetcher) Prefetch(path string, offset, length int64) error {
	f, err := procfs.OpenForPrefetch(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return procfs.Prefetch(f, offset, length)
}
