package readahead

import (
	"log/slog"
	"sync"
)

// Prefetcher opens a path and issues the kernel readahead advisory
// for (offset, length). internal/procfs.OpenForPrefetch + Prefetch
// satisfy this in production; tests substitute a fake.
type Prefetcher interface {
	Prefetch(path string, offset, length int64) error
}

// Config holds the [preheat] tunables Issue needs.
type Config struct {
	Strategy Strategy
	MaxProcs int // worker cap; <=0 issues synchronously on the caller's goroutine
}

// Issue sorts, merges and issues prefetch requests for regions,
// returning the number of merged requests issued. Concurrency is a
// bounded worker pool of goroutines rather than the reference's
// forked subprocesses (see SPEC_FULL.md §5): the observable cap-and-drain
// semantics are identical, issuance is just cheaper and testable.
func Issue(cfg Config, regions []Region, resolve KeyResolver, pf Prefetcher, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	work := append([]Region(nil), regions...)
	Sort(cfg.Strategy, work, resolve)
	merged := Merge(work)

	if cfg.MaxProcs <= 0 {
		for _, r := range merged {
			issueOne(pf, r, logger)
		}
		return len(merged)
	}

	sem := make(chan struct{}, cfg.MaxProcs)
	var wg sync.WaitGroup
	for _, r := range merged {
		sem <- struct{}{} // acquire before dispatch: the cap is held the instant a worker is committed
		wg.Add(1)
		go func(r Region) {
			defer wg.Done()
			defer func() { <-sem }()
			issueOne(pf, r, logger)
		}(r)
	}
	wg.Wait()
	return len(merged)
}

func issueOne(pf Prefetcher, r Region, logger *slog.Logger) {
	if err := pf.Prefetch(r.Path, r.Offset, r.Length); err != nil {
		logger.Debug("readahead: prefetch failed", "path", r.Path, "offset", r.Offset, "length", r.Length, "err", err)
	}
}
