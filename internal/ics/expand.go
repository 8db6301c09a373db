package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calplan/internal/log"
	"calplan/internal/model"
	"calplan/internal/recurrence"
	"calplan/internal/timeutil"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls expansion of subscribed feeds.
type ExpandConfig struct {
	// DisplayLocation is the zone every event is converted to; nil means
	// time.Local.
	DisplayLocation *time.Location

	// Range is the half-open window. An event is kept when its span
	// overlaps it.
	Range recurrence.Range

	// MaxOccurrencesPerEvent caps a single series. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult carries the events of one expansion pass.
type ExpandResult struct {
	Events []model.Event
	// TruncatedEvents lists UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into read-only events on their
// source's layer. Series are expanded with their RRULE and EXDATEs.
// RECURRENCE-ID overrides follow the same rule as moved occurrences of
// native patterns: the original slot is dropped and the override is kept
// when its own span overlaps the range.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.Range.End.Before(cfg.Range.Start) {
		return result, errors.New("expand: range end is before range start")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	var uids []string
	for _, ev := range events {
		key := ev.Source.ID + "\x00" + ev.UID
		if ev.IsOverride() {
			overrides[key] = append(overrides[key], ev)
			continue
		}
		if _, seen := bases[key]; !seen {
			uids = append(uids, key)
		}
		bases[key] = append(bases[key], ev)
	}

	for _, key := range uids {
		ov := overrides[key]
		for _, ev := range bases[key] {
			var out []model.Event
			if ev.RawRRule == "" {
				out = expandSingle(ev, ov, cfg)
			} else {
				var capped bool
				out, capped = expandSeries(ev, ov, cfg)
				if capped {
					result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
					appLog.Warn("ics expansion truncated", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
				}
			}
			result.Events = append(result.Events, out...)
		}
	}

	for _, ovs := range overrides {
		for _, o := range ovs {
			if overlaps(o.Start, o.End, cfg.Range) {
				result.Events = append(result.Events, toEvent(o, o.Start, o.End, cfg.DisplayLocation, true))
			}
		}
	}

	recurrence.SortEvents(result.Events)
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	if hasOverride(overrides, ev.Start) || !overlaps(ev.Start, ev.End, cfg.Range) {
		return nil
	}
	return []model.Event{toEvent(ev, ev.Start, ev.End, cfg.DisplayLocation, false)}
}

func expandSeries(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	opt, err := rrule.StrToROptionInLocation(ev.RawRRule, ev.Start.Location())
	if err != nil {
		appLog.Error("ics bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("ics bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the duration so instances that started
	// before the range but still run into it are found.
	dur := ev.End.Sub(ev.Start)
	from := cfg.Range.Start.Add(-dur).In(ev.Start.Location())
	to := cfg.Range.End.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	capped := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		capped = true
	}

	var out []model.Event
	for _, s := range starts {
		end := s.Add(dur)
		if ev.AllDay {
			s = timeutil.StartOfDay(s)
			end = s.AddDate(0, 0, max(1, int(dur.Hours()/24)))
		}
		if hasOverride(overrides, s) || !overlaps(s, end, cfg.Range) {
			continue
		}
		out = append(out, toEvent(ev, s, end, cfg.DisplayLocation, false))
	}
	return out, capped
}

func hasOverride(overrides []ParsedEvent, start time.Time) bool {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return true
		}
	}
	return false
}

// overlaps reports whether [start, end) meets r. Zero-length events count
// when their start lies in r.
func overlaps(start, end time.Time, r recurrence.Range) bool {
	if !end.After(start) {
		return r.Contains(start)
	}
	return start.Before(r.End) && end.After(r.Start)
}

func toEvent(ev ParsedEvent, start, end time.Time, loc *time.Location, override bool) model.Event {
	if ev.AllDay {
		// Keep the calendar date, not the instant, for all-day values.
		start = rebase(start, loc)
		end = rebase(end, loc)
	} else {
		start = start.In(loc)
		end = end.In(loc)
	}

	key := start.Format(time.RFC3339)
	if override {
		key = ev.RecurrenceID.Format(time.RFC3339)
	}
	return model.Event{
		ID:               recurrence.InstanceID(ev.Source.ID+"/"+ev.UID, key),
		Title:            ev.Summary,
		Start:            start,
		End:              end,
		AllDay:           ev.AllDay,
		Location:         ev.Location,
		Description:      ev.Description,
		LayerID:          ev.Source.LayerID,
		IsMovedException: override,
	}
}

func rebase(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
