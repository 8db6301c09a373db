package web

import (
	"time"

	"calplan/internal/layout"
	"calplan/internal/model"
	"calplan/internal/recurrence"
	"calplan/internal/store"
	"calplan/internal/timeutil"
	"calplan/internal/view"
)

// eventDTO is a JSON-friendly view of an event.
type eventDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`

	LayerID    string `json:"layer_id"`
	LayerName  string `json:"layer_name,omitempty"`
	LayerColor string `json:"layer_color,omitempty"`

	IsRecurringInstance bool   `json:"is_recurring_instance"`
	IsMovedException    bool   `json:"is_moved_exception"`
	PatternID           string `json:"pattern_id,omitempty"`
	OccurrenceDate      string `json:"occurrence_date,omitempty"`
	RecurrenceText      string `json:"recurrence_text,omitempty"`

	// Label is the month cell text.
	Label string `json:"label,omitempty"`
}

type eventsResponse struct {
	Events          []eventDTO `json:"events"`
	RangeStart      time.Time  `json:"range_start"`
	RangeEnd        time.Time  `json:"range_end"`
	DisplayTimeZone string     `json:"display_timezone"`
	WeekStart       string     `json:"week_start"`
}

type blockDTO struct {
	Event       eventDTO `json:"event"`
	StartMinute int      `json:"start_minute"`
	EndMinute   int      `json:"end_minute"`
	Column      int      `json:"column"`
	ColumnCount int      `json:"column_count"`
	layout.Rect
}

type dayDTO struct {
	Date     string     `json:"date"`
	AllDay   []eventDTO `json:"all_day,omitempty"`
	Blocks   []blockDTO `json:"blocks"`
	Clusters int        `json:"clusters"`
}

type dayResponse struct {
	dayDTO
	Zoom       float64   `json:"zoom"`
	GridHeight float64   `json:"grid_height"`
	Tasks      []taskDTO `json:"tasks"`
}

type taskDTO struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Details string     `json:"details,omitempty"`
	Status  string     `json:"status"`
	Date    string     `json:"date"`
	DueAt   *time.Time `json:"due_at,omitempty"`
}

type weekResponse struct {
	Start      string   `json:"start"`
	Zoom       float64  `json:"zoom"`
	GridHeight float64  `json:"grid_height"`
	Days       []dayDTO `json:"days"`
}

type cellDTO struct {
	Date    string     `json:"date"`
	Day     int        `json:"day"`
	InMonth bool       `json:"in_month"`
	Today   bool       `json:"today"`
	Events  []eventDTO `json:"events"`
	Hidden  int        `json:"hidden"`
}

type monthResponse struct {
	Year      int         `json:"year"`
	Month     int         `json:"month"`
	WeekStart string      `json:"week_start"`
	Weeks     [][]cellDTO `json:"weeks"`
}

type patternDTO struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	RecurrenceText  string `json:"recurrence_text"`
	RRule           string `json:"rrule,omitempty"`
	Type            string `json:"type"`
	Interval        int    `json:"interval"`
	FirstOccurrence string `json:"first_occurrence"`
	StartTime       string `json:"start_time,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	AllDay          bool   `json:"all_day"`

	LayerID    string `json:"layer_id"`
	LayerName  string `json:"layer_name,omitempty"`
	LayerColor string `json:"layer_color,omitempty"`

	Exceptions     recurrence.ExceptionCounts `json:"exceptions"`
	NextOccurrence *time.Time                 `json:"next_occurrence,omitempty"`
}

func toEventDTO(snap *store.Snapshot, ev model.Event, loc *time.Location) eventDTO {
	dto := eventDTO{
		ID:                  ev.ID,
		Title:               ev.Title,
		Start:               ev.Start.In(loc),
		End:                 ev.End.In(loc),
		AllDay:              ev.AllDay,
		Location:            ev.Location,
		Description:         ev.Description,
		LayerID:             ev.LayerID,
		IsRecurringInstance: ev.IsRecurringInstance,
		IsMovedException:    ev.IsMovedException,
		PatternID:           ev.PatternID,
		OccurrenceDate:      ev.OccurrenceDate,
	}
	if l, ok := snap.Layer(ev.LayerID); ok {
		dto.LayerName, dto.LayerColor = l.Name, l.Color
	}
	if p, ok := snap.Pattern(ev.PatternID); ok && ev.PatternID != "" {
		dto.RecurrenceText = recurrence.Describe(p.Pattern())
	}
	return dto
}

func toEventDTOs(snap *store.Snapshot, events []model.Event, loc *time.Location) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventDTO(snap, ev, loc))
	}
	return out
}

func toDayDTO(snap *store.Snapshot, d layout.DayLayout, loc *time.Location, showAllDay bool) dayDTO {
	dto := dayDTO{Date: d.Date, Clusters: d.Clusters, Blocks: make([]blockDTO, 0, len(d.Blocks))}
	if showAllDay {
		dto.AllDay = toEventDTOs(snap, d.AllDay, loc)
	}
	for _, b := range d.Blocks {
		dto.Blocks = append(dto.Blocks, blockDTO{
			Event:       toEventDTO(snap, b.Event, loc),
			StartMinute: b.StartMinute,
			EndMinute:   b.EndMinute,
			Column:      b.Column,
			ColumnCount: b.ColumnCount,
			Rect:        b.Rect,
		})
	}
	return dto
}

func toTaskDTOs(tasks []model.Task, loc *time.Location) []taskDTO {
	out := make([]taskDTO, 0, len(tasks))
	for _, t := range tasks {
		dto := taskDTO{ID: t.ID, Title: t.Title, Details: t.Details, Status: t.Status, Date: t.Date}
		if due, ok := t.DueAt.Get(); ok {
			due = due.In(loc)
			dto.DueAt = &due
		}
		out = append(out, dto)
	}
	return out
}

func toMonthResponse(snap *store.Snapshot, g view.MonthGrid, loc *time.Location, weekStart string) monthResponse {
	resp := monthResponse{Year: g.Year, Month: int(g.Month), WeekStart: weekStart}
	for _, row := range g.Weeks() {
		cells := make([]cellDTO, 0, len(row))
		for _, c := range row {
			evs := toEventDTOs(snap, c.Events, loc)
			for i := range evs {
				evs[i].Label = view.Label(c.Events[i], loc)
			}
			cells = append(cells, cellDTO{
				Date:    c.Date,
				Day:     c.Day,
				InMonth: c.InMonth,
				Today:   c.Today,
				Events:  evs,
				Hidden:  c.Hidden,
			})
		}
		resp.Weeks = append(resp.Weeks, cells)
	}
	return resp
}

func toPatternDTO(snap *store.Snapshot, p *recurrence.Projector, now time.Time) patternDTO {
	pat := p.Pattern()
	dto := patternDTO{
		ID:              pat.ID,
		Title:           pat.Title,
		RecurrenceText:  recurrence.Describe(pat),
		Type:            string(pat.Type),
		Interval:        pat.Interval,
		FirstOccurrence: timeutil.LocalDateKey(p.Anchor()),
		StartTime:       pat.StartTime,
		DurationMinutes: pat.DurationMinutes,
		AllDay:          pat.AllDay,
		LayerID:         pat.LayerID,
		Exceptions:      snap.Exceptions.Counts(pat.ID),
	}
	if rule, ok := p.RRule(); ok {
		dto.RRule = rule
	}
	if l, ok := snap.Layer(pat.LayerID); ok {
		dto.LayerName, dto.LayerColor = l.Name, l.Color
	}
	if next, ok := p.NextRemaining(now).Get(); ok {
		dto.NextOccurrence = &next
	}
	return dto
}
