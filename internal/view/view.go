// Package view shapes projected events for the month, week and day screens:
// layer filtering, grouping by local date and the month grid.
package view

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// GridWeeks is the fixed number of rows of a month grid.
const GridWeeks = 6

// DefaultMaxPerCell is used when MonthOptions.MaxPerCell is not positive.
const DefaultMaxPerCell = 3

// FilterVisible drops events on hidden layers. Events without a layer, or
// whose layer is unknown, stay visible.
func FilterVisible(events []model.Event, layers []model.Layer) []model.Event {
	hidden := make(map[string]bool, len(layers))
	for _, l := range layers {
		if !l.Visible {
			hidden[l.ID] = true
		}
	}
	if len(hidden) == 0 {
		return events
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !hidden[ev.LayerID] {
			out = append(out, ev)
		}
	}
	return out
}

// SortForCell orders all-day events first, then by start, then by id.
func SortForCell(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		if a.AllDay != b.AllDay {
			if a.AllDay {
				return -1
			}
			return 1
		}
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// DayKeys returns the date keys an event is listed under in loc. Timed
// events belong to the day they start on; all-day events to every day
// they cover.
func DayKeys(ev model.Event, loc *time.Location) []string {
	start := ev.Start.In(loc)
	if !ev.AllDay || !ev.End.After(ev.Start) {
		return []string{timeutil.LocalDateKey(start)}
	}
	var keys []string
	last := ev.End.In(loc).Add(-time.Nanosecond)
	for d := timeutil.StartOfDay(start); !d.After(last); d = d.AddDate(0, 0, 1) {
		keys = append(keys, timeutil.LocalDateKey(d))
	}
	return keys
}

// GroupByDay buckets events by DayKeys. Each bucket is sorted with
// SortForCell.
func GroupByDay(events []model.Event, loc *time.Location) map[string][]model.Event {
	if loc == nil {
		loc = time.Local
	}
	out := make(map[string][]model.Event)
	for _, ev := range events {
		for _, key := range DayKeys(ev, loc) {
			out[key] = append(out[key], ev)
		}
	}
	for _, bucket := range out {
		SortForCell(bucket)
	}
	return out
}

// EventsForDay returns the events listed under day's local date.
func EventsForDay(events []model.Event, day time.Time) []model.Event {
	return GroupByDay(events, day.Location())[timeutil.LocalDateKey(day)]
}

// WeekStart returns local midnight of the first day of the week holding t.
func WeekStart(t time.Time, first time.Weekday) time.Time {
	day := timeutil.StartOfDay(t)
	back := (int(day.Weekday()) - int(first) + 7) % 7
	return day.AddDate(0, 0, -back)
}

// ParseWeekday accepts full or three-letter English day names. Anything
// else yields def.
func ParseWeekday(s string, def time.Weekday) time.Weekday {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return def
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d
		}
	}
	return def
}

// Label is the one-line text of an event in a month cell: "09:00 Title"
// for timed events, the bare title for all-day ones.
func Label(ev model.Event, loc *time.Location) string {
	if ev.AllDay {
		return ev.Title
	}
	if loc == nil {
		loc = ev.Start.Location()
	}
	return ev.Start.In(loc).Format("15:04") + " " + ev.Title
}
