// Package layout turns one day's events into non-overlapping columns and
// pixel rectangles for a vertical time grid.
//
// A pass runs in three steps: Cluster partitions the items into groups
// connected by overlap, AssignColumns gives every item in a group a lane,
// and Place maps (window, lane, lane count) to a Rect for a Scale.
package layout

import (
	"cmp"
	"slices"
	"time"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// MinDurationMinutes is the shortest span an event occupies on the grid.
// Shorter events keep their stored duration; only their layout is floored.
const MinDurationMinutes = 15

// TimeWindow is a span of minutes since local midnight.
type TimeWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Overlaps reports whether the half-open windows intersect.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return !(w.EndMinute <= o.StartMinute || o.EndMinute <= w.StartMinute)
}

// Item is an event reduced to its layout window for one day. Column and
// ColumnCount are filled in by AssignColumns.
type Item struct {
	Event       model.Event
	StartMinute int
	EndMinute   int
	Column      int
	ColumnCount int
}

// Window returns the item's minute span.
func (it Item) Window() TimeWindow {
	return TimeWindow{StartMinute: it.StartMinute, EndMinute: it.EndMinute}
}

// NewItem clips ev to day and applies the MinDurationMinutes floor. Both
// ends are clamped to the day first, so the floor can push EndMinute past
// the end of the day by at most MinDurationMinutes.
func NewItem(ev model.Event, day time.Time) Item {
	start := timeutil.MinutesSinceMidnight(ev.Start, day)
	end := timeutil.MinutesSinceMidnight(ev.End, day)
	return Item{
		Event:       ev,
		StartMinute: start,
		EndMinute:   max(end, start+MinDurationMinutes),
	}
}

// SortItems orders items by start minute, then end minute, then event id.
func SortItems(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		if c := cmp.Compare(a.StartMinute, b.StartMinute); c != 0 {
			return c
		}
		if c := cmp.Compare(a.EndMinute, b.EndMinute); c != 0 {
			return c
		}
		return cmp.Compare(a.Event.ID, b.Event.ID)
	})
}

// Cluster partitions items into groups connected by overlap, directly or
// through a chain of overlapping neighbours. Each item joins the first
// cluster holding any member it overlaps, else starts a new one.
//
// Input order does not matter; items are sorted with SortItems first and
// every cluster comes back in that order. Because items arrive by start, a
// cluster that nothing overlaps at the current start can never be joined
// again, so the groups are maximal. The input slice is left untouched.
func Cluster(items []Item) [][]Item {
	sorted := slices.Clone(items)
	SortItems(sorted)

	var clusters [][]Item
	for _, it := range sorted {
		joined := false
		for ci, members := range clusters {
			if overlapsAny(it, members) {
				clusters[ci] = append(members, it)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, []Item{it})
		}
	}
	return clusters
}

func overlapsAny(it Item, members []Item) bool {
	w := it.Window()
	for _, m := range members {
		if w.Overlaps(m.Window()) {
			return true
		}
	}
	return false
}
