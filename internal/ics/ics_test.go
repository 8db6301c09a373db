package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calplan/internal/model"
	"calplan/internal/recurrence"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:single
DTSTART:20240312T090000Z
DTEND:20240312T100000Z
SUMMARY:Dentist
LOCATION:Main St
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTART;VALUE=DATE:20240314
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTART;TZID=Europe/Berlin:20240304T080000
DURATION:PT30M
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE;TZID=Europe/Berlin:20240311T080000
SUMMARY:Sync
END:VEVENT
BEGIN:VEVENT
UID:weekly
RECURRENCE-ID;TZID=Europe/Berlin:20240318T080000
DTSTART;TZID=Europe/Berlin:20240319T150000
DTEND;TZID=Europe/Berlin:20240319T153000
SUMMARY:Sync (moved)
END:VEVENT
BEGIN:VEVENT
SUMMARY:no uid
DTSTART:20240312T090000Z
END:VEVENT
END:VCALENDAR
`

var team = Source{ID: "team", URL: "https://example.com/team.ics", LayerID: "work"}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func march() recurrence.Range {
	return recurrence.Range{Start: utc(2024, 3, 1, 0, 0), End: utc(2024, 4, 1, 0, 0)}
}

func TestParseICS(t *testing.T) {
	evs, err := ParseICS(team, []byte(feed), time.UTC)
	require.NoError(t, err)
	require.Len(t, evs, 4)

	byUID := map[string][]ParsedEvent{}
	for _, ev := range evs {
		byUID[ev.UID] = append(byUID[ev.UID], ev)
	}

	single := byUID["single"][0]
	assert.Equal(t, "Dentist", single.Summary)
	assert.Equal(t, "Main St", single.Location)
	assert.True(t, single.Start.Equal(utc(2024, 3, 12, 9, 0)))
	assert.False(t, single.AllDay)

	holiday := byUID["holiday"][0]
	assert.True(t, holiday.AllDay)
	assert.Equal(t, utc(2024, 3, 14, 0, 0), holiday.Start)
	assert.Equal(t, utc(2024, 3, 15, 0, 0), holiday.End)

	require.Len(t, byUID["weekly"], 2)
	base, ov := byUID["weekly"][0], byUID["weekly"][1]
	assert.False(t, base.IsOverride())
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", base.RawRRule)
	assert.Equal(t, 30*time.Minute, base.End.Sub(base.Start))
	require.Len(t, base.ExDates, 1)
	assert.True(t, base.ExDates[0].Equal(utc(2024, 3, 11, 7, 0)))

	require.True(t, ov.IsOverride())
	assert.True(t, ov.RecurrenceID.Equal(utc(2024, 3, 18, 7, 0)))
}

func TestParseICSRejectsEmptyBody(t *testing.T) {
	_, err := ParseICS(team, []byte("  \n"), time.UTC)
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestExpandOccurrences(t *testing.T) {
	evs, err := ParseICS(team, []byte(feed), time.UTC)
	require.NoError(t, err)

	res, err := ExpandOccurrences(evs, ExpandConfig{DisplayLocation: time.UTC, Range: march()})
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedEvents)

	var got []string
	for _, ev := range res.Events {
		got = append(got, ev.Start.Format("01-02 15:04")+" "+ev.Title)
		assert.Equal(t, "work", ev.LayerID)
		assert.Equal(t, time.UTC, ev.Start.Location())
	}
	assert.Equal(t, []string{
		"03-04 07:00 Sync",
		"03-12 09:00 Dentist",
		"03-14 00:00 Holiday",
		"03-19 14:00 Sync (moved)",
		"03-25 07:00 Sync",
	}, got)
	assert.True(t, res.Events[3].IsMovedException)

	// Stable ids across passes.
	again, err := ExpandOccurrences(evs, ExpandConfig{DisplayLocation: time.UTC, Range: march()})
	require.NoError(t, err)
	assert.Equal(t, res.Events[0].ID, again.Events[0].ID)
}

func TestExpandOccurrencesRangeAndCap(t *testing.T) {
	evs, err := ParseICS(team, []byte(feed), time.UTC)
	require.NoError(t, err)

	// An event running into the range from before it is kept.
	res, err := ExpandOccurrences(evs, ExpandConfig{
		DisplayLocation: time.UTC,
		Range:           recurrence.Range{Start: utc(2024, 3, 12, 9, 30), End: utc(2024, 3, 13, 0, 0)},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Dentist", res.Events[0].Title)

	res, err = ExpandOccurrences(evs, ExpandConfig{DisplayLocation: time.UTC, Range: march(), MaxOccurrencesPerEvent: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"weekly"}, res.TruncatedEvents)

	_, err = ExpandOccurrences(evs, ExpandConfig{Range: recurrence.Range{Start: utc(2024, 3, 2, 0, 0), End: utc(2024, 3, 1, 0, 0)}})
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	p := model.RecurrencePattern{
		ID:              "standup",
		Title:           "Standup",
		FirstOccurrence: utc(2024, 3, 4, 0, 0),
		StartTime:       "09:00",
		DurationMinutes: 30,
		Type:            model.Weekly,
		Interval:        1,
		EndType:         model.EndCount,
		EndCount:        mo.Some(6),
		LayerID:         "work",
	}
	pr, err := recurrence.NewProjector(p, time.UTC)
	require.NoError(t, err)
	ix, err := recurrence.NewExceptionIndex([]model.Exception{
		model.DeletedException("standup", "2024-03-11"),
		model.MovedException("standup", "2024-03-18", model.Event{
			ID:    "moved-1",
			Title: "Standup (moved)",
			Start: utc(2024, 3, 19, 15, 0),
			End:   utc(2024, 3, 19, 15, 30),
		}),
	})
	require.NoError(t, err)

	dentist := model.Event{ID: "dentist", Title: "Dentist", Start: utc(2024, 3, 20, 8, 0), End: utc(2024, 3, 20, 9, 0)}
	r := recurrence.Range{Start: utc(2024, 3, 1, 0, 0), End: utc(2024, 5, 1, 0, 0)}

	body := Export(ExportInput{
		Name:       "calplan",
		Events:     []model.Event{dentist},
		Patterns:   []*recurrence.Projector{pr},
		Exceptions: ix,
		Range:      r,
		Now:        utc(2024, 3, 1, 0, 0),
	})
	assert.Contains(t, body, "RRULE:FREQ=WEEKLY;INTERVAL=1;COUNT=6")
	assert.Contains(t, body, "EXDATE:20240311T090000Z")
	assert.Contains(t, body, "RECURRENCE-ID:20240318T090000Z")

	parsed, err := ParseICS(Source{ID: "export"}, []byte(body), time.UTC)
	require.NoError(t, err)
	res, err := ExpandOccurrences(parsed, ExpandConfig{DisplayLocation: time.UTC, Range: r})
	require.NoError(t, err)

	want := append(recurrence.Expand(pr, ix, r), dentist)
	recurrence.SortEvents(want)
	require.Len(t, res.Events, len(want))
	for i := range want {
		assert.True(t, want[i].Start.Equal(res.Events[i].Start), "event %d: want %s got %s", i, want[i].Start, res.Events[i].Start)
		assert.Equal(t, want[i].Title, res.Events[i].Title)
	}
}

func TestExportWritesClampedMonthlySeriesOneByOne(t *testing.T) {
	p := model.RecurrencePattern{
		ID:              "rent",
		Title:           "Rent",
		FirstOccurrence: utc(2024, 1, 31, 0, 0),
		AllDay:          true,
		Type:            model.Monthly,
		Interval:        1,
		EndType:         model.EndNever,
	}
	pr, err := recurrence.NewProjector(p, time.UTC)
	require.NoError(t, err)

	body := Export(ExportInput{
		Patterns: []*recurrence.Projector{pr},
		Range:    recurrence.Range{Start: utc(2024, 1, 1, 0, 0), End: utc(2024, 5, 1, 0, 0)},
	})
	assert.NotContains(t, body, "RRULE")
	assert.Equal(t, 4, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "DTSTART;VALUE=DATE:20240229")
}

func TestFetcherUsesValidatorsAndCache(t *testing.T) {
	var failing atomic.Bool
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	src := Source{ID: "team", URL: srv.URL + "/team.ics?token=secret"}
	f := NewFetcher(t.TempDir())
	ctx := context.Background()

	res, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, feed, string(res.Body))

	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, feed, string(res.Body))

	failing.Store(true)
	res, err = f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.EqualValues(t, 3, hits.Load())

	fresh := NewFetcher(t.TempDir())
	_, err = fresh.FetchOne(ctx, src)
	assert.Error(t, err)

	results, errs := fresh.FetchAll(ctx, []Source{src, {ID: "blank"}})
	assert.Empty(t, results)
	assert.Len(t, errs, 2)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT30M", 30 * time.Minute, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"-PT15M", -15 * time.Minute, false},
		{"PT", 0, true},
		{"30M", 0, true},
		{"P1H", 0, true},
		{"PT5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=1"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
