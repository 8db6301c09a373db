package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calplan/internal/log"
)

var (
	ErrEmptyBody  = errors.New("empty ICS body")
	ErrMissingUID = errors.New("missing UID")
	ErrNoStart    = errors.New("missing or malformed DTSTART")
)

// ParsedEvent is a VEVENT normalised for expansion. Floating and all-day
// values are placed in the display location handed to ParseICS.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
	// RecurrenceID is set on overrides of a single instance of a series.
	RecurrenceID *time.Time
}

// IsOverride reports whether the VEVENT replaces one instance of a series.
func (ev ParsedEvent) IsOverride() bool { return ev.RecurrenceID != nil }

// ParseICS parses one feed body. Broken VEVENTs are logged and skipped; only
// an unreadable calendar fails the whole feed.
func ParseICS(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar %s: %w", src.ID, err)
	}

	var events []ParsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve, loc)
		if err != nil {
			appLog.Warn("ics vevent skipped", "source", src.ID, "err", err)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "source", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	out.UID = propValue(ve.GetProperty(ical.ComponentPropertyUniqueId))
	if out.UID == "" {
		return out, ErrMissingUID
	}
	if n, err := strconv.Atoi(propValue(ve.GetProperty(ical.ComponentPropertySequence))); err == nil {
		out.Seq = n
	}
	out.Summary = propValue(ve.GetProperty(ical.ComponentPropertySummary))
	out.Description = propValue(ve.GetProperty(ical.ComponentPropertyDescription))
	out.Location = propValue(ve.GetProperty(ical.ComponentPropertyLocation))

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, fmt.Errorf("%w: uid %s", ErrNoStart, out.UID)
	}
	out.AllDay = isDateValue(startProp)
	start, err := parsePropTime(startProp, loc)
	if err != nil {
		return out, fmt.Errorf("%w: uid %s: %w", ErrNoStart, out.UID, err)
	}
	out.Start = start
	out.End = eventEnd(ve, out.Start, out.AllDay, loc)

	out.RawRRule = propValue(ve.GetProperty(ical.ComponentPropertyRrule))

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseICSTime(part, paramTZ(p, loc))
			if err != nil {
				appLog.Debug("ics exdate ignored", "uid", out.UID, "value", part)
				continue
			}
			out.ExDates = append(out.ExDates, t)
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		t, err := parsePropTime(rid, loc)
		if err != nil {
			return out, fmt.Errorf("uid %s: bad RECURRENCE-ID: %w", out.UID, err)
		}
		out.RecurrenceID = &t
	}

	return out, nil
}

// eventEnd resolves DTEND, then DURATION, then the RFC 5545 defaults: one
// day for all-day events, zero length for timed ones.
func eventEnd(ve *ical.VEvent, start time.Time, allDay bool, loc *time.Location) time.Time {
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if end, err := parsePropTime(p, loc); err == nil && !end.Before(start) {
			return end
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDuration); p != nil {
		if d, err := parseDuration(p.Value); err == nil {
			return start.Add(d)
		}
	}
	if allDay {
		return start.AddDate(0, 0, 1)
	}
	return start
}

func propValue(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// paramTZ returns the location named by the property's TZID, falling back
// to loc when it is absent or unknown.
func paramTZ(p *ical.IANAProperty, loc *time.Location) *time.Location {
	tz := p.ICalParameters["TZID"]
	if len(tz) == 0 {
		return loc
	}
	l, err := time.LoadLocation(strings.Trim(tz[0], `"`))
	if err != nil {
		appLog.Debug("ics unknown TZID, using display location", "tzid", tz[0])
		return loc
	}
	return l
}

func parsePropTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseICSTime(p.Value, paramTZ(p, loc))
}

// parseICSTime parses DATE, local DATE-TIME and UTC DATE-TIME values.
// Values without a zone are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// parseDuration handles the RFC 5545 dur-value subset used by real feeds:
// [+-]P[nW][nD][T[nH][nM][nS]].
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("bad duration %q", s)
	}

	var d time.Duration
	inTime := false
	num := 0
	digits := false
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			digits = true
			continue
		case r == 'T':
			inTime = true
			continue
		}
		if !digits {
			return 0, fmt.Errorf("bad duration %q", s)
		}
		unit := time.Duration(num)
		switch {
		case r == 'W' && !inTime:
			d += unit * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			d += unit * 24 * time.Hour
		case r == 'H' && inTime:
			d += unit * time.Hour
		case r == 'M' && inTime:
			d += unit * time.Minute
		case r == 'S' && inTime:
			d += unit * time.Second
		default:
			return 0, fmt.Errorf("bad duration %q", s)
		}
		num, digits = 0, false
	}
	if digits {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	if neg {
		d = -d
	}
	return d, nil
}
