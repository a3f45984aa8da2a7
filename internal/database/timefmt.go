package database

import "time"

// ParseTimestamp reads a stored run time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// FormatRunTime formats a stored run time for display, e.g.
// "Feb 06, 2026 14:05". Unparseable values are returned unchanged.
func FormatRunTime(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return t.Format("Jan 02, 2006 15:04")
}

// FormatDuration renders a run duration in milliseconds compactly.
func FormatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Round(100 * time.Millisecond).String()
}
