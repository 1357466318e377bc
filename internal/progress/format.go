package progress

import (
	"fmt"
	"strings"
	"time"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB", "EB"}

// HumanBytes formats a byte count in powers of 1024 with two-decimal
// precision: 0 -> "0.00 Bytes", 1536 -> "1.50 KB".
func HumanBytes(n float64) string {
	if n < 0 {
		n = 0
	}
	i := 0
	for n >= 1024 && i < len(byteUnits)-1 {
		n /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", n, byteUnits[i])
}

// FormatETA renders a duration in "Dd Hh Mm Ss" style, collapsed to the
// largest two non-zero units: 3725s -> "1h 2m", 59s -> "59s".
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second).Seconds())

	parts := []struct {
		unit string
		n    int64
	}{
		{"d", secs / 86400},
		{"h", secs % 86400 / 3600},
		{"m", secs % 3600 / 60},
		{"s", secs % 60},
	}

	var out []string
	for _, p := range parts {
		if p.n > 0 {
			out = append(out, fmt.Sprintf("%d%s", p.n, p.unit))
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "0s"
	}
	return strings.Join(out, " ")
}
