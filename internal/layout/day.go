package layout

import (
	"time"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// Block is a laid-out timed event.
type Block struct {
	Item
	Rect Rect
}

// DayLayout is one column of the time grid.
type DayLayout struct {
	Date string
	// AllDay holds the all-day events touching the date; they are drawn in
	// a strip above the grid and take no part in clustering.
	AllDay []model.Event
	Blocks []Block
	// Clusters is the number of overlap groups on the day.
	Clusters int
}

// Day lays out the events that touch day's local date. Timed events that
// cross midnight are clipped to the day; the event values themselves are
// not changed.
func Day(events []model.Event, day time.Time, s Scale) DayLayout {
	dayStart, dayEnd := timeutil.DayBounds(day)
	out := DayLayout{Date: timeutil.LocalDateKey(dayStart)}

	var items []Item
	for _, ev := range events {
		if !touches(ev, dayStart, dayEnd) {
			continue
		}
		if ev.AllDay {
			out.AllDay = append(out.AllDay, ev)
			continue
		}
		items = append(items, NewItem(ev, dayStart))
	}

	clusters := Cluster(items)
	out.Clusters = len(clusters)
	for _, c := range clusters {
		for _, it := range AssignColumns(c) {
			out.Blocks = append(out.Blocks, Block{
				Item: it,
				Rect: Place(it.Window(), it.Column, it.ColumnCount, s),
			})
		}
	}
	return out
}

// Week lays out seven consecutive days starting at from's local date.
func Week(events []model.Event, from time.Time, s Scale) []DayLayout {
	start := timeutil.StartOfDay(from)
	days := make([]DayLayout, 0, 7)
	for i := range 7 {
		days = append(days, Day(events, start.AddDate(0, 0, i), s))
	}
	return days
}

// touches reports whether ev overlaps [dayStart, dayEnd). Zero-length and
// open-ended all-day events count for the date they start on.
func touches(ev model.Event, dayStart, dayEnd time.Time) bool {
	if !ev.Start.Before(dayEnd) {
		return false
	}
	if ev.End.After(ev.Start) {
		return ev.End.After(dayStart)
	}
	return !ev.Start.Before(dayStart)
}
