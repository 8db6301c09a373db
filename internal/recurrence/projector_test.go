package recurrence

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func basePattern() model.RecurrencePattern {
	return model.RecurrencePattern{
		ID:              "standup",
		Title:           "Standup",
		FirstOccurrence: date(2024, 1, 1),
		StartTime:       "09:00",
		DurationMinutes: 30,
		Type:            model.Weekly,
		Interval:        1,
		EndType:         model.EndNever,
		LayerID:         "work",
	}
}

func mustProjector(t *testing.T, p model.RecurrencePattern) *Projector {
	t.Helper()
	pr, err := NewProjector(p, time.UTC)
	require.NoError(t, err)
	return pr
}

func starts(occs []Occurrence) []time.Time {
	out := make([]time.Time, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.Start)
	}
	return out
}

func TestNextBiweeklyScenario(t *testing.T) {
	p := basePattern()
	p.Interval = 2
	pr := mustProjector(t, p)

	assert.Equal(t, at(2024, 1, 29, 9, 0), pr.Next(date(2024, 1, 20)))
}

func TestNextIsStrictlyAfterNowAndOnTheGrid(t *testing.T) {
	tests := []struct {
		name     string
		typ      model.RecurrenceType
		interval int
		stepDays int
	}{
		{"daily", model.Daily, 1, 1},
		{"every 3 days", model.Daily, 3, 3},
		{"weekly", model.Weekly, 1, 7},
		{"biweekly", model.Weekly, 2, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePattern()
			p.Type = tt.typ
			p.Interval = tt.interval
			pr := mustProjector(t, p)

			for now := at(2023, 12, 30, 0, 0); now.Before(at(2024, 4, 1, 0, 0)); now = now.Add(7 * time.Hour) {
				next := pr.Next(now)
				require.True(t, next.After(now), "next %s not after now %s", next, now)

				days := int(next.Sub(pr.Anchor()).Hours() / 24)
				assert.Zero(t, days%tt.stepDays, "next %s off the step grid", next)
				assert.Equal(t, 9, next.Hour())

				// No occurrence is skipped between now and next.
				prev := next.AddDate(0, 0, -tt.stepDays)
				assert.True(t, !prev.After(now) || prev.Before(pr.Anchor()))
			}
		})
	}
}

func TestNextAtExactOccurrenceAdvances(t *testing.T) {
	pr := mustProjector(t, basePattern())
	assert.Equal(t, at(2024, 1, 8, 9, 0), pr.Next(at(2024, 1, 1, 9, 0)))
	assert.Equal(t, at(2024, 1, 1, 9, 0), pr.Next(at(2023, 6, 1, 0, 0)))
}

func TestMonthlyClampsToLastDayWithoutDrift(t *testing.T) {
	p := basePattern()
	p.Type = model.Monthly
	p.FirstOccurrence = date(2024, 1, 31)
	pr := mustProjector(t, p)

	occs := pr.Occurrences(Range{Start: date(2024, 1, 1), End: date(2024, 7, 1)})
	assert.Equal(t, []time.Time{
		at(2024, 1, 31, 9, 0),
		at(2024, 2, 29, 9, 0),
		at(2024, 3, 31, 9, 0),
		at(2024, 4, 30, 9, 0),
		at(2024, 5, 31, 9, 0),
		at(2024, 6, 30, 9, 0),
	}, starts(occs))

	assert.Equal(t, at(2024, 2, 29, 9, 0), pr.Next(at(2024, 2, 1, 0, 0)))
	assert.Equal(t, at(2024, 3, 31, 9, 0), pr.Next(at(2024, 2, 29, 9, 0)))
}

func TestCountEndYieldsExactlyN(t *testing.T) {
	p := basePattern()
	p.Type = model.Daily
	p.EndType = model.EndCount
	p.EndCount = mo.Some(5)
	pr := mustProjector(t, p)

	all := pr.Occurrences(Range{Start: date(2000, 1, 1), End: date(2100, 1, 1)})
	require.Len(t, all, 5)
	assert.Equal(t, at(2024, 1, 5, 9, 0), all[4].Start)

	// Counted from the anchor, not from the range start.
	late := pr.Occurrences(Range{Start: date(2024, 1, 4), End: date(2100, 1, 1)})
	assert.Equal(t, []time.Time{at(2024, 1, 4, 9, 0), at(2024, 1, 5, 9, 0)}, starts(late))
	assert.Equal(t, 3, late[0].Index)

	assert.Empty(t, pr.Occurrences(Range{Start: date(2024, 1, 6), End: date(2024, 2, 1)}))
}

func TestDateEndIncludesTheWholeEndDay(t *testing.T) {
	p := basePattern()
	p.Type = model.Daily
	p.EndType = model.EndDate
	p.EndDate = mo.Some(date(2024, 1, 3))
	pr := mustProjector(t, p)

	occs := pr.Occurrences(Range{Start: date(2024, 1, 1), End: date(2024, 2, 1)})
	assert.Equal(t, []time.Time{at(2024, 1, 1, 9, 0), at(2024, 1, 2, 9, 0), at(2024, 1, 3, 9, 0)}, starts(occs))

	// Range end wins when it comes first.
	occs = pr.Occurrences(Range{Start: date(2024, 1, 1), End: date(2024, 1, 2)})
	assert.Len(t, occs, 1)
}

func TestNextRemainingHonoursEndCondition(t *testing.T) {
	p := basePattern()
	p.EndType = model.EndCount
	p.EndCount = mo.Some(2)
	pr := mustProjector(t, p)

	next, ok := pr.NextRemaining(date(2024, 1, 2)).Get()
	require.True(t, ok)
	assert.Equal(t, at(2024, 1, 8, 9, 0), next)

	assert.True(t, pr.NextRemaining(date(2024, 1, 9)).IsAbsent())
	// Next ignores the end condition.
	assert.Equal(t, at(2024, 1, 15, 9, 0), pr.Next(date(2024, 1, 9)))
}

func TestOccurrencesHalfOpenRange(t *testing.T) {
	pr := mustProjector(t, basePattern())

	occs := pr.Occurrences(Range{Start: at(2024, 1, 8, 9, 0), End: at(2024, 1, 15, 9, 0)})
	require.Len(t, occs, 1)
	assert.Equal(t, "2024-01-08", occs[0].Date)
	assert.Equal(t, at(2024, 1, 8, 9, 30), occs[0].End)

	assert.Nil(t, pr.Occurrences(Range{Start: date(2024, 2, 1), End: date(2024, 1, 1)}))
}

func TestAllDayOccurrencesSpanWholeDays(t *testing.T) {
	p := basePattern()
	p.AllDay = true
	p.StartTime = ""
	p.DurationMinutes = 0
	pr := mustProjector(t, p)

	occs := pr.Occurrences(Range{Start: date(2024, 1, 1), End: date(2024, 1, 2)})
	require.Len(t, occs, 1)
	assert.Equal(t, date(2024, 1, 1), occs[0].Start)
	assert.Equal(t, date(2024, 1, 2), occs[0].End)
}

func TestProjectorAgreesWithRRule(t *testing.T) {
	tests := []struct {
		name string
		edit func(*model.RecurrencePattern)
	}{
		{"daily every 2", func(p *model.RecurrencePattern) { p.Type = model.Daily; p.Interval = 2 }},
		{"weekly", func(p *model.RecurrencePattern) {}},
		{"every 3 weeks", func(p *model.RecurrencePattern) { p.Interval = 3 }},
		{"monthly on the 15th", func(p *model.RecurrencePattern) {
			p.Type = model.Monthly
			p.FirstOccurrence = date(2024, 1, 15)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePattern()
			tt.edit(&p)
			p.EndType = model.EndCount
			p.EndCount = mo.Some(12)
			pr := mustProjector(t, p)

			s, ok := pr.RRule()
			require.True(t, ok)
			opt, err := rrule.StrToROptionInLocation(s, time.UTC)
			require.NoError(t, err)
			opt.Dtstart = pr.Anchor()
			rule, err := rrule.NewRRule(*opt)
			require.NoError(t, err)

			got := starts(pr.Occurrences(Range{Start: date(2000, 1, 1), End: date(2100, 1, 1)}))
			want := rule.All()
			require.Len(t, got, len(want))
			for i := range want {
				assert.True(t, want[i].Equal(got[i]), "occurrence %d: rrule %s, projector %s", i, want[i], got[i])
			}
		})
	}
}

func TestRRuleStrings(t *testing.T) {
	p := basePattern()
	p.Interval = 2
	p.EndType = model.EndCount
	p.EndCount = mo.Some(4)
	s, ok := mustProjector(t, p).RRule()
	require.True(t, ok)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;COUNT=4", s)

	p = basePattern()
	p.Type = model.Daily
	p.EndType = model.EndDate
	p.EndDate = mo.Some(date(2024, 3, 1))
	s, ok = mustProjector(t, p).RRule()
	require.True(t, ok)
	assert.Equal(t, "FREQ=DAILY;INTERVAL=1;UNTIL=20240301T235959Z", s)

	p = basePattern()
	p.Type = model.Monthly
	p.FirstOccurrence = date(2024, 1, 31)
	_, ok = mustProjector(t, p).RRule()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*model.RecurrencePattern)
		want error
	}{
		{"valid", func(p *model.RecurrencePattern) {}, nil},
		{"missing id", func(p *model.RecurrencePattern) { p.ID = "" }, ErrMissingID},
		{"missing first date", func(p *model.RecurrencePattern) { p.FirstOccurrence = time.Time{} }, ErrMissingFirstDate},
		{"zero interval", func(p *model.RecurrencePattern) { p.Interval = 0 }, ErrInvalidInterval},
		{"negative interval", func(p *model.RecurrencePattern) { p.Interval = -2 }, ErrInvalidInterval},
		{"yearly", func(p *model.RecurrencePattern) { p.Type = "yearly" }, ErrUnknownType},
		{"count without count", func(p *model.RecurrencePattern) { p.EndType = model.EndCount }, ErrInvalidEndCondition},
		{"count of zero", func(p *model.RecurrencePattern) {
			p.EndType = model.EndCount
			p.EndCount = mo.Some(0)
		}, ErrInvalidEndCondition},
		{"date without date", func(p *model.RecurrencePattern) { p.EndType = model.EndDate }, ErrInvalidEndCondition},
		{"date before start", func(p *model.RecurrencePattern) {
			p.EndType = model.EndDate
			p.EndDate = mo.Some(date(2023, 12, 31))
		}, ErrInvalidEndCondition},
		{"never with count", func(p *model.RecurrencePattern) { p.EndCount = mo.Some(3) }, ErrInvalidEndCondition},
		{"empty end type", func(p *model.RecurrencePattern) { p.EndType = "" }, ErrInvalidEndCondition},
		{"bad start time", func(p *model.RecurrencePattern) { p.StartTime = "25:00" }, ErrInvalidStartTime},
		{"zero duration", func(p *model.RecurrencePattern) { p.DurationMinutes = 0 }, ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePattern()
			tt.edit(&p)
			err := Validate(p)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidPattern)

			_, err = NewProjector(p, time.UTC)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		edit func(*model.RecurrencePattern)
		want string
	}{
		{"weekly", func(p *model.RecurrencePattern) {}, "Weekly"},
		{"daily", func(p *model.RecurrencePattern) { p.Type = model.Daily }, "Daily"},
		{"every 3 months", func(p *model.RecurrencePattern) {
			p.Type = model.Monthly
			p.Interval = 3
		}, "Every 3 month(s)"},
		{"count", func(p *model.RecurrencePattern) {
			p.Interval = 2
			p.EndType = model.EndCount
			p.EndCount = mo.Some(5)
		}, "Every 2 week(s), 5 times"},
		{"until", func(p *model.RecurrencePattern) {
			p.EndType = model.EndDate
			p.EndDate = mo.Some(date(2024, 6, 30))
		}, "Weekly, until 2024-06-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePattern()
			tt.edit(&p)
			assert.Equal(t, tt.want, Describe(p))
		})
	}
}

func TestOccurrenceDateKeysMatchTimeutil(t *testing.T) {
	pr := mustProjector(t, basePattern())
	for _, occ := range pr.Occurrences(Range{Start: date(2024, 1, 1), End: date(2024, 3, 1)}) {
		assert.Equal(t, timeutil.LocalDateKey(occ.Start), occ.Date)
	}
}
