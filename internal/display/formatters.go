package display

import (
	"fmt"
	"strings"
	"time"
)

// Binary unit boundaries shared by FormatSize.
const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
)

// FormatSize converts a byte count into a human-readable string using
// binary (1024) units. Precision is fixed per unit: bytes are whole
// numbers, KB and MB carry one decimal, GB carries two. Both pipelines
// report sizes through this function; they must never diverge.
func FormatSize(bytes int64) string {
	switch {
	case bytes < kib:
		return fmt.Sprintf("%d B", bytes)
	case bytes < mib:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kib)
	case bytes < gib:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mib)
	default:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gib)
	}
}

// FormatDuration renders an elapsed duration as a compact "_h _m _s"
// string, omitting leading zero units. Sub-second durations collapse
// to "0s".
func FormatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	if total < 0 {
		total = 0
	}

	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
