package storage

import (
	"fmt"
	"time"
)

// TimeLayout is how created_at is stored: UTC, second precision. The layout
// sorts lexically, so cutoff comparisons work on the TEXT column.
const TimeLayout = "2006-01-02 15:04:05"

func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

func ParseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(TimeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("storage: bad timestamp %q", s)
}

// ExtendedCreatedAt is the created_at an alert gets when extended by days.
func ExtendedCreatedAt(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, days).Truncate(time.Second)
}
