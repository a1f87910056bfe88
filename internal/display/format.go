package display

import (
	"fmt"
	"time"
)

// FormatBytes returns a human-readable size (B, KiB, MiB, GiB, TiB, PiB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	if exp >= len(suffixes) {
		exp = len(suffixes) - 1
		div = 1
		for i := 0; i <= exp; i++ {
			div *= unit
		}
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatETA renders a remaining-time estimate in seconds as "1h02m03s",
// "4m05s" or "12s". Negative values mean unknown and render as "--".
func FormatETA(seconds float64) string {
	if seconds < 0 {
		return "--"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatProgress renders a progress line such as " 42.0% ETA 1m05s @ 3.1x".
// Speed is omitted when zero.
func FormatProgress(percent, etaSeconds, speed float64) string {
	line := fmt.Sprintf("%5.1f%% ETA %s", percent, FormatETA(etaSeconds))
	if speed > 0 {
		line += fmt.Sprintf(" @ %.1fx", speed)
	}
	return line
}
