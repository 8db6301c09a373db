package recurrence

import (
	"time"

	"github.com/samber/mo"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// Range is a half-open interval [Start, End) over occurrence start times.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Occurrence is one raw step of a pattern before exceptions are applied.
type Occurrence struct {
	// Index counts steps from the anchor; the anchor itself is 0.
	Index int
	// Date is the YYYY-MM-DD key of the occurrence; exceptions are keyed by it.
	Date  string
	Start time.Time
	End   time.Time
}

// Projector expands one validated pattern. It holds no mutable state, so a
// single Projector may be shared between goroutines.
type Projector struct {
	pattern model.RecurrencePattern
	anchor  time.Time

	// endLimit is the exclusive upper bound for EndDate series: local
	// midnight after the end date. Zero for other end types.
	endLimit time.Time
}

// NewProjector validates p and fixes its anchor (first occurrence date
// combined with the start time) in loc. Projection never fails afterwards.
func NewProjector(p model.RecurrencePattern, loc *time.Location) (*Projector, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	hour, minute := 0, 0
	if !p.AllDay {
		// Already checked by Validate.
		hour, minute, _ = timeutil.ParseClock(p.StartTime)
	}
	y, m, d := p.FirstOccurrence.Date()
	pr := &Projector{
		pattern: p,
		anchor:  time.Date(y, m, d, hour, minute, 0, 0, loc),
	}
	if end, ok := p.EndDate.Get(); ok && p.EndType == model.EndDate {
		ey, em, ed := end.Date()
		pr.endLimit = time.Date(ey, em, ed, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}
	return pr, nil
}

// Pattern returns the pattern this projector was built from.
func (p *Projector) Pattern() model.RecurrencePattern { return p.pattern }

// ID returns the pattern id.
func (p *Projector) ID() string { return p.pattern.ID }

// Anchor returns the first occurrence start.
func (p *Projector) Anchor() time.Time { return p.anchor }

// at returns the start of the k-th step. Every step is computed from the
// anchor, so monthly clamping never drifts: a series on the 31st visits
// Feb 29 and then Mar 31 again.
func (p *Projector) at(k int) time.Time {
	n := k * p.pattern.Interval
	switch p.pattern.Type {
	case model.Daily:
		return p.anchor.AddDate(0, 0, n)
	case model.Weekly:
		return p.anchor.AddDate(0, 0, 7*n)
	default:
		return timeutil.AddMonthsClamped(p.anchor, n)
	}
}

// floorIndex returns the largest k >= 0 with at(k) <= t, or 0 when t is
// before the anchor. The estimate skips whole steps so long-running series
// do not iterate from the first occurrence.
func (p *Projector) floorIndex(t time.Time) int {
	if !t.After(p.anchor) {
		return 0
	}

	var k int
	switch p.pattern.Type {
	case model.Daily, model.Weekly:
		stepDays := p.pattern.Interval
		if p.pattern.Type == model.Weekly {
			stepDays *= 7
		}
		days := int(t.Sub(p.anchor).Hours() / 24)
		k = days/stepDays - 1
	default:
		ty, tm, _ := t.Date()
		ay, am, _ := p.anchor.Date()
		months := (ty-ay)*12 + int(tm) - int(am)
		k = months/p.pattern.Interval - 1
	}
	if k < 0 {
		k = 0
	}
	for k > 0 && p.at(k).After(t) {
		k--
	}
	for p.at(k + 1).Compare(t) <= 0 {
		k++
	}
	return k
}

// withinEnd reports whether step k starting at start satisfies the end
// condition.
func (p *Projector) withinEnd(k int, start time.Time) bool {
	switch p.pattern.EndType {
	case model.EndCount:
		return k < p.pattern.EndCount.OrEmpty()
	case model.EndDate:
		return start.Before(p.endLimit)
	default:
		return true
	}
}

// Next returns the first occurrence strictly after now, ignoring the end
// condition. The result is always anchor + j*step for some j >= 0.
func (p *Projector) Next(now time.Time) time.Time {
	if now.Before(p.anchor) {
		return p.anchor
	}
	k := p.floorIndex(now)
	for !p.at(k).After(now) {
		k++
	}
	return p.at(k)
}

// NextRemaining is Next restricted to the series' end condition. It is
// absent once the series has finished.
func (p *Projector) NextRemaining(now time.Time) mo.Option[time.Time] {
	k := 0
	if !now.Before(p.anchor) {
		k = p.floorIndex(now)
	}
	for !p.at(k).After(now) {
		k++
	}
	start := p.at(k)
	if !p.withinEnd(k, start) {
		return mo.None[time.Time]()
	}
	return mo.Some(start)
}

// Occurrences returns the raw occurrences whose start lies in r, in
// ascending order, honouring the end condition. Count-limited series count
// from the anchor, not from r.Start.
func (p *Projector) Occurrences(r Range) []Occurrence {
	if !r.End.After(r.Start) {
		return nil
	}

	var out []Occurrence
	for k := p.floorIndex(r.Start); ; k++ {
		start := p.at(k)
		if !start.Before(r.End) || !p.withinEnd(k, start) {
			break
		}
		if start.Before(r.Start) {
			continue
		}
		out = append(out, p.occurrence(k, start))
	}
	return out
}

func (p *Projector) occurrence(k int, start time.Time) Occurrence {
	return Occurrence{
		Index: k,
		Date:  timeutil.LocalDateKey(start),
		Start: start,
		End:   p.endFor(start),
	}
}

func (p *Projector) endFor(start time.Time) time.Time {
	if p.pattern.AllDay {
		days := (p.pattern.DurationMinutes + timeutil.MinutesPerDay - 1) / timeutil.MinutesPerDay
		if days < 1 {
			days = 1
		}
		return start.AddDate(0, 0, days)
	}
	return start.Add(time.Duration(p.pattern.DurationMinutes) * time.Minute)
}
