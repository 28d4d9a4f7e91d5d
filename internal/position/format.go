package position

import (
	"fmt"
	"time"
)

// FormatMillis renders ms as minutes:seconds with zero-padded seconds.
// Negative values render as 0:00.
func FormatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	seconds := (ms - minutes*60000) / 1000
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Format is FormatMillis for a duration.
func Format(d time.Duration) string {
	return FormatMillis(d.Milliseconds())
}

// Progress returns pos as a percentage of total, capped at 100.
func Progress(pos, total time.Duration) float64 {
	if total <= 0 || pos <= 0 {
		return 0
	}
	return min(float64(pos)/float64(total)*100, 100)
}
