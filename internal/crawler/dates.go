package crawler

import (
	"strings"
	"time"
)

// orderDateLayouts are the date shapes Walmart renders on order cards and in
// control labels, in the order they are tried.
var orderDateLayouts = []string{
	"Jan 2, 2006",
	"01/02/2006",
	"2006-01-02",
}

// ParseOrderDate parses a date string in any of the known on-site formats.
// It reports false when no layout matches; extraction treats that as an
// unusable row rather than an error.
func ParseOrderDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateWindow is an inclusive date range at day granularity.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, comparing calendar
// days and ignoring the time of day.
func (w DateWindow) Contains(t time.Time) bool {
	d := toDay(t)
	return !d.Before(toDay(w.Start)) && !d.After(toDay(w.End))
}

func toDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
