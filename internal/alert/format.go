package alert

import (
	"fmt"
	"strings"
	"time"
)

// FormatAge renders the relative age shown on alert cards.
func FormatAge(ts, now time.Time) string {
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	mins := int(d / time.Minute)
	hours := mins / 60
	days := hours / 24

	switch {
	case mins < 60:
		return plural(mins, "min") + " ago"
	case hours < 24:
		return plural(hours, "hour") + " ago"
	default:
		return plural(days, "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Summary is a one-line rendering for consoles and logs.
func (a Alert) Summary(now time.Time) string {
	var b strings.Builder
	if a.Read {
		b.WriteString("  ")
	} else {
		b.WriteString("* ")
	}
	fmt.Fprintf(&b, "[%-6s] %s", a.Intensity.Label(), a.Title)
	fmt.Fprintf(&b, " | %s | %s | id=%s", a.Location, FormatAge(a.Timestamp, now), a.ID)
	return b.String()
}
