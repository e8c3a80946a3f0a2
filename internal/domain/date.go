package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar days
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar day into UTC midnight
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrBadArguments)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrBadArguments, s)
	}
	return t, nil
}

// FormatDate renders a calendar day, empty for the zero time
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// Day truncates t to UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
