package utils

import (
	"fmt"
	"time"
)

// Now returns the current time at millisecond precision, the resolution
// timestamps travel with on the wire. Tests replace it.
var Now = func() time.Time {
	return time.Now().Truncate(time.Millisecond)
}

// Since returns time since given time
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// FormatDuration formats duration in human-readable format
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
