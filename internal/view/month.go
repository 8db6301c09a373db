package view

import (
	"time"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// MonthOptions configures Month.
type MonthOptions struct {
	WeekStart  time.Weekday
	MaxPerCell int
	// Today marks the matching cell; zero marks none.
	Today time.Time
}

// Cell is one day of the month grid.
type Cell struct {
	Date    string
	Day     int
	InMonth bool
	Today   bool
	Events  []model.Event
	// Hidden counts the events cut off by MaxPerCell ("+N more").
	Hidden int
}

// MonthGrid is a GridWeeks x 7 block of days covering a month.
type MonthGrid struct {
	Year  int
	Month time.Month
	// Start and End bound the grid: [first cell, day after last cell).
	Start time.Time
	End   time.Time
	Cells []Cell
}

// MonthBounds returns the span covered by the grid of year/month in loc.
// Callers project events over it before calling Month.
func MonthBounds(year int, month time.Month, loc *time.Location, first time.Weekday) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start := WeekStart(time.Date(year, month, 1, 0, 0, 0, 0, loc), first)
	return start, start.AddDate(0, 0, GridWeeks*7)
}

// Month lays events out on the grid of year/month. Every cell lists at most
// MaxPerCell events in SortForCell order; the rest are only counted.
func Month(events []model.Event, year int, month time.Month, loc *time.Location, opts MonthOptions) MonthGrid {
	if loc == nil {
		loc = time.Local
	}
	maxPer := opts.MaxPerCell
	if maxPer <= 0 {
		maxPer = DefaultMaxPerCell
	}
	todayKey := ""
	if !opts.Today.IsZero() {
		todayKey = timeutil.LocalDateKey(opts.Today.In(loc))
	}

	start, end := MonthBounds(year, month, loc, opts.WeekStart)
	byDay := GroupByDay(events, loc)

	grid := MonthGrid{Year: year, Month: month, Start: start, End: end}
	grid.Cells = make([]Cell, 0, GridWeeks*7)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := timeutil.LocalDateKey(d)
		evs := byDay[key]
		cell := Cell{
			Date:    key,
			Day:     d.Day(),
			InMonth: d.Month() == month,
			Today:   key == todayKey,
		}
		if len(evs) > maxPer {
			cell.Hidden = len(evs) - maxPer
			evs = evs[:maxPer]
		}
		cell.Events = evs
		grid.Cells = append(grid.Cells, cell)
	}
	return grid
}

// Weeks splits the grid into rows of seven cells.
func (g MonthGrid) Weeks() [][]Cell {
	rows := make([][]Cell, 0, GridWeeks)
	for i := 0; i+7 <= len(g.Cells); i += 7 {
		rows = append(rows, g.Cells[i:i+7])
	}
	return rows
}
