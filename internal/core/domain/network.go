package domain

import "time"

// NetworkDay is a distinct-day counter row, unique on (user, prefix, day).
type NetworkDay struct {
	UserID    string
	Prefix    string
	Day       string // YYYY-MM-DD
	FirstSeen time.Time
	LastSeen  time.Time
}

// DayKey formats a timestamp as the calendar-day key used by the counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
