package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// Describe renders a short human summary such as "Weekly" or
// "Every 2 week(s), 5 times".
func Describe(p model.RecurrencePattern) string {
	var unit, single string
	switch p.Type {
	case model.Daily:
		unit, single = "day(s)", "Daily"
	case model.Monthly:
		unit, single = "month(s)", "Monthly"
	default:
		unit, single = "week(s)", "Weekly"
	}

	text := single
	if p.Interval > 1 {
		text = fmt.Sprintf("Every %d %s", p.Interval, unit)
	}

	switch p.EndType {
	case model.EndCount:
		if n, ok := p.EndCount.Get(); ok {
			text += fmt.Sprintf(", %d times", n)
		}
	case model.EndDate:
		if d, ok := p.EndDate.Get(); ok {
			text += ", until " + timeutil.LocalDateKey(d)
		}
	}
	return text
}

// RRule renders the series as an RFC 5545 RRULE value (without the "RRULE:"
// prefix). It reports false for monthly series anchored after the 28th:
// RFC 5545 skips months lacking that day, while this projector clamps to the
// month's last day, so such series have to be exported occurrence by
// occurrence.
func (p *Projector) RRule() (string, bool) {
	opt := rrule.ROption{
		Dtstart:  p.anchor,
		Interval: p.pattern.Interval,
	}
	switch p.pattern.Type {
	case model.Daily:
		opt.Freq = rrule.DAILY
	case model.Weekly:
		opt.Freq = rrule.WEEKLY
	case model.Monthly:
		if p.anchor.Day() > 28 {
			return "", false
		}
		opt.Freq = rrule.MONTHLY
	}

	switch p.pattern.EndType {
	case model.EndCount:
		opt.Count = p.pattern.EndCount.OrEmpty()
	case model.EndDate:
		// UNTIL is inclusive; the last instant before endLimit keeps every
		// occurrence on the end date.
		opt.Until = p.endLimit.Add(-1).Truncate(time.Second)
	}
	return opt.RRuleString(), true
}
