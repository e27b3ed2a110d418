// Package clock converts between "HH:MM" wall-clock strings and minute-of-day
// integers. It is used at the edges of the service (HTTP, CLI, schedule file).
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidClock = errors.New("invalid time of day: expected HH:MM")
	ErrInvalidDate  = errors.New("invalid date: expected YYYY-MM-DD")
)

// Parse converts "HH:MM" to minutes since midnight. "24:00" is accepted as the
// end of the day.
func Parse(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, err := strconv.Atoi(s[:2])
	if err != nil || s[0] == '+' || s[0] == '-' {
		return 0, fmt.Errorf("%w: bad hour in %q", ErrInvalidClock, s)
	}
	minute, err := strconv.Atoi(s[3:])
	if err != nil || s[3] == '+' || s[3] == '-' {
		return 0, fmt.Errorf("%w: bad minute in %q", ErrInvalidClock, s)
	}
	if hour == 24 && minute == 0 {
		return 24 * 60, nil
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidClock, s)
	}
	return hour*60 + minute, nil
}

// Format renders a minute of day as zero-padded "HH:MM".
func Format(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseDate parses a calendar day and returns it as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MinuteOf returns the minute of day of t in its own location.
func MinuteOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
