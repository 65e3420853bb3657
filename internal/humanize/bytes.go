// Package humanize renders byte counts the way preheatctl's output
// and daemon logs want them: a unit picked by magnitude rather than a
// raw integer.
package humanize

import "fmt"

// Bytes is a size in bytes, e.g. the sum of a tracked executable's
// owned map lengths (model.Exe.Size).
type Bytes int64

// String picks B, KB, MB, GB or TB by magnitude (1024-based).
func (b Bytes) String() string {
	const unit = 1024
	v := float64(b)
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.2f TB", v/(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GB", v/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MB", v/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KB", v/(1<<10))
	default:
		return fmt.Sprintf("%d B", int64(b))
	}
}

func (b Bytes) KB() float64 { return float64(b) / 1024 }
func (b Bytes) MB() float64 { return float64(b) / (1024 * 1024) }
func (b Bytes) GB() float64 { return float64(b) / (1024 * 1024 * 1024) }
