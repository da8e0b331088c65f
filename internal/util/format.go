package util

import (
	"fmt"
	"strconv"
)

// FormatBytes formats a byte count into a human-readable string. Negative
// counts mean the size is unknown.
func FormatBytes(b int64) string {
	const unit = 1024
	switch {
	case b < 0:
		return "?"
	case b < unit:
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatSeeds abbreviates large seed counts: 999, 1.2k, 35k.
func FormatSeeds(n int) string {
	switch {
	case n < 1000:
		return strconv.Itoa(max(n, 0))
	case n < 10000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%dk", n/1000)
}

// TruncatePath shortens a file path to maxLen runes from the left, keeping
// the file name visible.
func TruncatePath(path string, maxLen int) string {
	r := []rune(path)
	if len(r) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return string(r[len(r)-max(maxLen, 0):])
	}
	return "..." + string(r[len(r)-maxLen+3:])
}
