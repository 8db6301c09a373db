package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"calplan/internal/model"
	"calplan/internal/recurrence"
	"calplan/internal/timeutil"
)

const (
	icsUTC  = "20060102T150405Z"
	icsDate = "20060102"
)

// ExportInput is the native calendar data to publish.
type ExportInput struct {
	Name       string
	Events     []model.Event
	Patterns   []*recurrence.Projector
	Exceptions recurrence.ExceptionIndex
	// Range bounds the instances written out one by one for series that
	// have no RRULE form.
	Range recurrence.Range
	Now   time.Time
}

// Export serialises stored events and native series as an iCalendar feed.
// A series becomes one VEVENT with RRULE and EXDATE lines; each moved
// occurrence becomes an override VEVENT carrying RECURRENCE-ID.
func Export(in ExportInput) string {
	cal := ical.NewCalendarFor("calplan")
	cal.SetMethod(ical.MethodPublish)
	if in.Name != "" {
		cal.SetXWRCalName(in.Name)
	}

	for _, ev := range in.Events {
		if ev.IsRecurringInstance || ev.IsDeletionException {
			continue
		}
		writeEvent(cal.AddEvent(ev.ID), ev, in.Now)
	}

	for _, p := range in.Patterns {
		rule, ok := p.RRule()
		if !ok {
			for _, ev := range recurrence.Expand(p, in.Exceptions, in.Range) {
				writeEvent(cal.AddEvent(ev.ID), ev, in.Now)
			}
			continue
		}
		exportSeries(cal, p, rule, in)
	}
	return cal.Serialize()
}

func exportSeries(cal *ical.Calendar, p *recurrence.Projector, rule string, in ExportInput) {
	pat := p.Pattern()
	first := p.Instance(recurrence.Occurrence{
		Date:  timeutil.LocalDateKey(p.Anchor()),
		Start: p.Anchor(),
		End:   p.Anchor().Add(time.Duration(pat.DurationMinutes) * time.Minute),
	})
	if pat.AllDay {
		first.End = p.Anchor().AddDate(0, 0, max(1, (pat.DurationMinutes+timeutil.MinutesPerDay-1)/timeutil.MinutesPerDay))
	}
	first.ID = pat.ID

	ve := cal.AddEvent(pat.ID)
	writeEvent(ve, first, in.Now)
	ve.AddRrule(rule)

	for _, date := range in.Exceptions.Deleted(pat.ID) {
		addExdate(ve, p, date)
	}
	for _, moved := range in.Exceptions.Moved(pat.ID) {
		addExdate(ve, p, moved.OccurrenceDate)
	}
	for _, moved := range in.Exceptions.Moved(pat.ID) {
		ov := cal.AddEvent(pat.ID)
		writeEvent(ov, moved, in.Now)
		orig, ok := originalStart(p, moved.OccurrenceDate)
		if !ok {
			continue
		}
		if pat.AllDay {
			ov.SetProperty(ical.ComponentPropertyRecurrenceId, orig.Format(icsDate), ical.WithValue(string(ical.ValueDataTypeDate)))
		} else {
			ov.SetProperty(ical.ComponentPropertyRecurrenceId, orig.UTC().Format(icsUTC))
		}
	}
}

// addExdate suppresses the occurrence of p on date. EXDATE and
// RECURRENCE-ID carry the overridden instance, not the replacement.
func addExdate(ve *ical.VEvent, p *recurrence.Projector, date string) {
	orig, ok := originalStart(p, date)
	if !ok {
		return
	}
	if p.Pattern().AllDay {
		ve.AddExdate(orig.Format(icsDate), ical.WithValue(string(ical.ValueDataTypeDate)))
		return
	}
	ve.AddExdate(orig.UTC().Format(icsUTC))
}

func originalStart(p *recurrence.Projector, date string) (time.Time, bool) {
	day, err := timeutil.ParseDateKey(date, p.Anchor().Location())
	if err != nil {
		return time.Time{}, false
	}
	return timeutil.AtClock(day, p.Anchor().Hour(), p.Anchor().Minute()), true
}

func writeEvent(ve *ical.VEvent, ev model.Event, now time.Time) {
	ve.SetDtStampTime(now)
	if ev.AllDay {
		ve.SetAllDayStartAt(ev.Start)
		end := ev.End
		if !end.After(ev.Start) {
			end = ev.Start.AddDate(0, 0, 1)
		}
		ve.SetAllDayEndAt(end)
	} else {
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
	}
	ve.SetSummary(ev.Title)
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.LayerID != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, ev.LayerID)
	}
}
