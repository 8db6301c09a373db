package web

import (
	"net/http"
	"net/url"
	"time"

	"calplan/internal/ics"
	"calplan/internal/layout"
	appLog "calplan/internal/log"
	"calplan/internal/model"
	"calplan/internal/recurrence"
	"calplan/internal/refresh"
	"calplan/internal/timeutil"
	"calplan/internal/view"
)

// today returns local midnight of the current date in the display zone.
func (s *Server) today() time.Time {
	return timeutil.StartOfDay(s.now().In(s.store.Location()))
}

// dateParam reads a YYYY-MM-DD query value, defaulting to today.
func (s *Server) dateParam(q url.Values, key string) (time.Time, bool) {
	v := q.Get(key)
	if v == "" {
		return s.today(), true
	}
	d, err := timeutil.ParseDateKey(v, s.store.Location())
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// scaleParam applies the optional zoom and width query values to the
// configured grid metrics.
func (s *Server) scaleParam(q url.Values) layout.Scale {
	sc := s.cfg.Scale()
	if w := parseFloatDefault(q.Get("width"), 0); w > 0 {
		sc.CanvasWidthPx = w
	}
	return sc.WithZoom(parseFloatDefault(q.Get("zoom"), sc.MinuteHeightPx))
}

// handleEvents returns every visible event in a date window.
//
// GET /api/events?from=2024-03-01&to=2024-03-31
// GET /api/events?days=7&backfill=1
//   - from/to: inclusive local dates; take precedence over days/backfill
//   - days:     days after today to include (default 7)
//   - backfill: days before today to include (default 1)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.store.Location()
	today := s.today()

	var rng recurrence.Range
	if q.Get("from") != "" || q.Get("to") != "" {
		from, ok1 := s.dateParam(q, "from")
		to, ok2 := s.dateParam(q, "to")
		if !ok1 || !ok2 {
			writeError(w, http.StatusBadRequest, "from/to must be YYYY-MM-DD")
			return
		}
		rng = recurrence.Range{Start: from, End: to.AddDate(0, 0, 1)}
	} else {
		days := parseIntDefault(q.Get("days"), 7)
		if days <= 0 {
			days = 7
		}
		backfill := max(parseIntDefault(q.Get("backfill"), 1), 0)
		rng = recurrence.Range{Start: today.AddDate(0, 0, -backfill), End: today.AddDate(0, 0, days+1)}
	}
	if !rng.End.After(rng.Start) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	snap := s.store.Snapshot()
	events := snap.Window(rng)
	appLog.Debug("api events request",
		"range_start", rng.Start.Format(time.RFC3339),
		"range_end", rng.End.Format(time.RFC3339),
		"count", len(events),
	)

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:          toEventDTOs(snap, events, loc),
		RangeStart:      rng.Start,
		RangeEnd:        rng.End,
		DisplayTimeZone: loc.String(),
		WeekStart:       s.cfg.WeekStart,
	})
}

// dayWindow widens [from, from+days) by one day on the left so series
// occurrences that start the evening before and run past midnight are laid
// out too.
func dayWindow(from time.Time, days int) recurrence.Range {
	return recurrence.Range{Start: from.AddDate(0, 0, -1), End: from.AddDate(0, 0, days)}
}

// handleDay returns the time grid of one day.
//
// GET /api/day?date=2024-03-12&zoom=0.8&width=600
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, ok := s.dateParam(q, "date")
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	sc := s.scaleParam(q)
	snap := s.store.Snapshot()
	loc := s.store.Location()

	d := layout.Day(snap.Window(dayWindow(day, 1)), day, sc)
	writeJSON(w, http.StatusOK, dayResponse{
		dayDTO:     toDayDTO(snap, d, loc, s.cfg.ShowAllDay),
		Zoom:       sc.MinuteHeightPx,
		GridHeight: sc.GridHeightPx(),
		Tasks:      toTaskDTOs(snap.TasksFor(d.Date), loc),
	})
}

// handleWeek returns the seven day grids of the week holding date.
//
// GET /api/week?date=2024-03-12&zoom=0.8&width=600
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, ok := s.dateParam(q, "date")
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	sc := s.scaleParam(q)
	snap := s.store.Snapshot()
	loc := s.store.Location()

	from := view.WeekStart(day, s.cfg.FirstWeekday())
	events := snap.Window(dayWindow(from, 7))

	resp := weekResponse{
		Start:      timeutil.LocalDateKey(from),
		Zoom:       sc.MinuteHeightPx,
		GridHeight: sc.GridHeightPx(),
	}
	for _, d := range layout.Week(events, from, sc) {
		resp.Days = append(resp.Days, toDayDTO(snap, d, loc, s.cfg.ShowAllDay))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTasks lists tasks, all of them or those planned for one date.
//
// GET /api/tasks?date=2024-03-12
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap := s.store.Snapshot()
	loc := s.store.Location()

	if q.Get("date") == "" {
		writeJSON(w, http.StatusOK, toTaskDTOs(snap.Tasks, loc))
		return
	}
	day, ok := s.dateParam(q, "date")
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTOs(snap.TasksFor(timeutil.LocalDateKey(day)), loc))
}

// handleMonth returns the 6x7 month grid.
//
// GET /api/month?year=2024&month=2
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today := s.today()
	year := parseIntDefault(q.Get("year"), today.Year())
	month := parseIntDefault(q.Get("month"), int(today.Month()))
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "invalid year or month")
		return
	}

	snap := s.store.Snapshot()
	loc := s.store.Location()
	first := s.cfg.FirstWeekday()
	start, end := view.MonthBounds(year, time.Month(month), loc, first)
	events := snap.Window(recurrence.Range{Start: start, End: end})

	grid := view.Month(events, year, time.Month(month), loc, view.MonthOptions{
		WeekStart:  first,
		MaxPerCell: s.cfg.Month.MaxEventsPerCell,
		Today:      today,
	})
	writeJSON(w, http.StatusOK, toMonthResponse(snap, grid, loc, s.cfg.WeekStart))
}

// handlePatterns lists the recurring series with their description,
// exception counts and next remaining occurrence.
func (s *Server) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	now := s.now()
	out := make([]patternDTO, 0, len(snap.Patterns))
	for _, p := range snap.Patterns {
		out = append(out, toPatternDTO(snap, p, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleICS publishes the stored events and series of visible layers as an
// iCalendar feed. Subscribed feeds are not re-published.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	now := s.now()

	hidden := make(map[string]bool)
	for _, l := range snap.Layers {
		if !l.Visible {
			hidden[l.ID] = true
		}
	}
	var patterns []*recurrence.Projector
	for _, p := range snap.Patterns {
		if !hidden[p.Pattern().LayerID] {
			patterns = append(patterns, p)
		}
	}

	body := ics.Export(ics.ExportInput{
		Name:       "calplan",
		Events:     view.FilterVisible(append([]model.Event(nil), snap.Events...), snap.Layers),
		Patterns:   patterns,
		Exceptions: snap.Exceptions,
		Range:      refresh.Window(now.In(s.store.Location()), s.cfg.HorizonDays),
		Now:        now,
	})

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
