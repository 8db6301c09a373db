// Package timeutil holds the wall-clock day arithmetic shared by the
// recurrence projector and the layout engine.
//
// All day grouping goes through LocalDateKey. Timestamps are never compared
// for "same day" by equality; callers convert to the display location first
// (t.In(loc)) and then compare keys.
package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay is the height of a day grid in minutes.
	MinutesPerDay = 24 * 60

	// DateKeyLayout is the canonical YYYY-MM-DD key format.
	DateKeyLayout = "2006-01-02"
)

// LocalDateKey returns the YYYY-MM-DD key of t's wall-clock date in t's own
// location.
func LocalDateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey parses a YYYY-MM-DD key as local midnight in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateKeyLayout, strings.TrimSpace(key), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", key, err)
	}
	return t, nil
}

// StartOfDay returns local midnight of t's wall-clock date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayBounds returns [midnight, next midnight) for t's wall-clock date. The
// end is computed with AddDate so DST days keep their real length.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

// MinutesSinceMidnight returns t's wall-clock minute of day in day's
// location, rounded to the nearest minute. Times before day's local midnight
// map to 0 and times at or after the next local midnight map to
// MinutesPerDay. On DST days the result follows the clock face, not the
// elapsed time since midnight.
func MinutesSinceMidnight(t, day time.Time) int {
	start, end := DayBounds(day)
	switch {
	case t.Before(start):
		return 0
	case !t.Before(end):
		return MinutesPerDay
	}
	lt := t.In(start.Location())
	mins := lt.Hour()*60 + lt.Minute()
	if time.Duration(lt.Second())*time.Second+time.Duration(lt.Nanosecond()) >= 30*time.Second {
		mins++
	}
	return min(mins, MinutesPerDay)
}

// ErrInvalidClock is returned for malformed "HH:MM" strings.
var ErrInvalidClock = errors.New("invalid clock time")

// ParseClock parses a 24h "HH:MM" wall-clock string.
func ParseClock(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return hour, minute, nil
}

// AtClock combines the wall-clock date of day with hour:minute.
func AtClock(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped adds n calendar months to t keeping its wall-clock time.
// When t's day does not exist in the target month the result is the last
// day of that month (Jan 31 + 1 month = Feb 28/29), unlike time.AddDate which
// normalises into the following month.
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	ty := y + floorDiv(total, 12)
	tm := time.Month(total - floorDiv(total, 12)*12 + 1)
	if last := DaysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
