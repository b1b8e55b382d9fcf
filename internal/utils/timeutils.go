package utils

import (
	"fmt"
	"time"
)

// eventLayouts covers RFC3339 plus the millisecond/compact-offset form CloudWatch
// uses in alarm state-change events ("2024-03-01T10:00:00.123+0000").
var eventLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// ParseTimestamp returns a UTC time from the provided string or an error.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range eventLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported layout", value)
}

// AbsDuration returns the absolute distance between two instants.
func AbsDuration(a, b time.Time) time.Duration {
	if a.After(b) {
		return a.Sub(b)
	}
	return b.Sub(a)
}

// Window returns [now-d, now] in UTC.
func Window(now time.Time, d time.Duration) (time.Time, time.Time) {
	end := now.UTC()
	return end.Add(-d), end
}
