package recurrence

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"calplan/internal/model"
)

// instanceNamespace seeds the deterministic ids of synthetic instances.
var instanceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("calplan:recurring-instance"))

// InstanceID returns a stable id for the occurrence of patternID on date.
// The same occurrence gets the same id on every projection pass.
func InstanceID(patternID, date string) string {
	return uuid.NewSHA1(instanceNamespace, []byte(patternID+"/"+date)).String()
}

// Instance builds the synthetic event for a raw occurrence.
func (p *Projector) Instance(occ Occurrence) model.Event {
	return model.Event{
		ID:                  InstanceID(p.pattern.ID, occ.Date),
		Title:               p.pattern.Title,
		Start:               occ.Start,
		End:                 occ.End,
		AllDay:              p.pattern.AllDay,
		Location:            p.pattern.Location,
		Description:         p.pattern.Description,
		LayerID:             p.pattern.LayerID,
		IsRecurringInstance: true,
		PatternID:           p.pattern.ID,
		OccurrenceDate:      occ.Date,
	}
}

// Expand projects one pattern over r with exceptions applied:
//
//   - no exception: a synthetic instance is emitted
//   - deleted: the occurrence is suppressed
//   - moved: the original slot is suppressed; the replacement is emitted
//     when its own start falls in r, wherever its original date lies
//
// The result is sorted with SortEvents.
func Expand(p *Projector, ix ExceptionIndex, r Range) []model.Event {
	out := expand(p, ix, r)
	SortEvents(out)
	return out
}

// ExpandAll expands every projector over r into one sorted slice.
func ExpandAll(ps []*Projector, ix ExceptionIndex, r Range) []model.Event {
	var out []model.Event
	for _, p := range ps {
		out = append(out, expand(p, ix, r)...)
	}
	SortEvents(out)
	return out
}

func expand(p *Projector, ix ExceptionIndex, r Range) []model.Event {
	var out []model.Event
	for _, occ := range p.Occurrences(r) {
		if ix.Lookup(p.ID(), occ.Date).IsPresent() {
			continue
		}
		out = append(out, p.Instance(occ))
	}
	for _, ev := range ix.Moved(p.ID()) {
		if r.Contains(ev.Start) {
			out = append(out, ev)
		}
	}
	return out
}

// SortEvents orders events by start, then pattern id, then occurrence date,
// then id, so equal starts always come out in the same order.
func SortEvents(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.PatternID, b.PatternID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.OccurrenceDate, b.OccurrenceDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
