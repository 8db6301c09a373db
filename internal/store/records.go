package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// DefaultLayerID is assigned to records that name no layer.
const DefaultLayerID = "personal"

// eventRecord is one entry of events.json. Besides plain events the file
// holds the moved and deleted occurrences of recurring series.
type eventRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	AllDay      bool   `json:"all_day"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Layer       string `json:"layer"`

	IsRecurringInstance    bool   `json:"is_recurring_instance"`
	IsMovedException       bool   `json:"is_moved_exception"`
	IsDeletionException    bool   `json:"is_deletion_exception"`
	PatternID              string `json:"pattern_id"`
	OriginalPatternID      string `json:"original_pattern_id"`
	OriginalOccurrenceDate string `json:"original_occurrence_date"`
}

func (r eventRecord) patternID() string {
	if r.OriginalPatternID != "" {
		return r.OriginalPatternID
	}
	return r.PatternID
}

// patternRecord is one entry of recurring_patterns.json.
type patternRecord struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	FirstOccurrence string `json:"first_occurrence"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Location        string `json:"location"`
	Description     string `json:"description"`
	AllDay          bool   `json:"all_day"`
	Layer           string `json:"layer"`

	RecurrenceType     string  `json:"recurrence_type"`
	RecurrenceInterval *int    `json:"recurrence_interval"`
	RecurrenceEndType  string  `json:"recurrence_end_type"`
	RecurrenceEndDate  *string `json:"recurrence_end_date"`
	RecurrenceEndCount *int    `json:"recurrence_end_count"`
}

// layerRecord is one entry of layers.json.
type layerRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	Visible *bool  `json:"visible"`
}

// taskRecord is one entry of tasks.json.
type taskRecord struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Details   string  `json:"details"`
	Status    string  `json:"status"`
	Date      string  `json:"date"`
	DueAt     *string `json:"due_at"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// DefaultLayers is used when layers.json is missing or empty.
func DefaultLayers() []model.Layer {
	return []model.Layer{
		{ID: "personal", Name: "Personal", Color: "#28a745", Visible: true},
		{ID: "work", Name: "Work", Color: "#007bff", Visible: true},
		{ID: "clients", Name: "Clients", Color: "#fd7e14", Visible: true},
		{ID: "health", Name: "Health & Fitness", Color: "#e83e8c", Visible: true},
	}
}

var errBadTime = errors.New("unrecognised timestamp")

// timestampLayouts are tried in order. Values without an offset are wall
// clock times in the display location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	timeutil.DateKeyLayout,
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errBadTime, s)
}

func (r eventRecord) toEvent(loc *time.Location) (model.Event, error) {
	start, err := parseTimestamp(r.Start, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %q start: %w", r.ID, err)
	}
	end := start
	if strings.TrimSpace(r.End) != "" {
		if end, err = parseTimestamp(r.End, loc); err != nil {
			return model.Event{}, fmt.Errorf("event %q end: %w", r.ID, err)
		}
	}
	if r.AllDay {
		start = timeutil.StartOfDay(start)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	}

	ev := model.Event{
		ID:                  r.ID,
		Title:               r.Title,
		Start:               start,
		End:                 end,
		AllDay:              r.AllDay,
		Location:            r.Location,
		Description:         r.Description,
		LayerID:             layerOrDefault(r.Layer),
		IsRecurringInstance: r.IsRecurringInstance,
		PatternID:           r.patternID(),
		OccurrenceDate:      r.OriginalOccurrenceDate,
		IsMovedException:    r.IsMovedException,
		IsDeletionException: r.IsDeletionException,
	}
	return ev, ev.Validate()
}

// toPattern maps a stored series onto the model. The duration comes from
// end_time - start_time; an end time before the start runs past midnight.
// End fields that do not belong to the end type are dropped; stored
// never-ending series often still carry a default count.
func (r patternRecord) toPattern(loc *time.Location) (model.RecurrencePattern, error) {
	p := model.RecurrencePattern{
		ID:          r.ID,
		Title:       r.Title,
		StartTime:   strings.TrimSpace(r.StartTime),
		AllDay:      r.AllDay,
		Location:    r.Location,
		Description: r.Description,
		LayerID:     layerOrDefault(r.Layer),
		Type:        model.RecurrenceType(strings.ToLower(defaultString(r.RecurrenceType, string(model.Weekly)))),
		Interval:    1,
		EndType:     model.EndType(strings.ToLower(defaultString(r.RecurrenceEndType, string(model.EndNever)))),
	}
	if r.RecurrenceInterval != nil {
		p.Interval = *r.RecurrenceInterval
	}

	first, err := timeutil.ParseDateKey(r.FirstOccurrence, loc)
	if err != nil {
		return p, fmt.Errorf("pattern %q: %w", r.ID, err)
	}
	p.FirstOccurrence = first

	if !p.AllDay {
		p.DurationMinutes, err = clockSpan(p.StartTime, r.EndTime)
		if err != nil {
			return p, fmt.Errorf("pattern %q: %w", r.ID, err)
		}
	}

	switch p.EndType {
	case model.EndCount:
		if r.RecurrenceEndCount != nil {
			p.EndCount = mo.Some(*r.RecurrenceEndCount)
		}
	case model.EndDate:
		if r.RecurrenceEndDate != nil && *r.RecurrenceEndDate != "" {
			d, err := timeutil.ParseDateKey(firstN(*r.RecurrenceEndDate, len(timeutil.DateKeyLayout)), loc)
			if err != nil {
				return p, fmt.Errorf("pattern %q end date: %w", r.ID, err)
			}
			p.EndDate = mo.Some(d)
		}
	}
	return p, nil
}

func clockSpan(start, end string) (int, error) {
	sh, sm, err := timeutil.ParseClock(start)
	if err != nil {
		return 0, err
	}
	eh, em, err := timeutil.ParseClock(end)
	if err != nil {
		return 0, err
	}
	mins := (eh*60 + em) - (sh*60 + sm)
	if mins < 0 {
		mins += timeutil.MinutesPerDay
	}
	return mins, nil
}

func (r layerRecord) toLayer() model.Layer {
	return model.Layer{
		ID:      r.ID,
		Name:    defaultString(r.Name, r.ID),
		Color:   r.Color,
		Visible: r.Visible == nil || *r.Visible,
	}
}

// toTask validates the planned date. A task without one falls on the local
// date of its due time.
func (r taskRecord) toTask(loc *time.Location) (model.Task, error) {
	t := model.Task{
		ID:        r.ID,
		Title:     r.Title,
		Details:   r.Details,
		Status:    defaultString(strings.TrimSpace(r.Status), model.TaskStatusPlanned),
		CreatedAt: optionalTimestamp(r.CreatedAt, loc),
		UpdatedAt: optionalTimestamp(r.UpdatedAt, loc),
	}
	if r.DueAt != nil && strings.TrimSpace(*r.DueAt) != "" {
		due, err := parseTimestamp(*r.DueAt, loc)
		if err != nil {
			return model.Task{}, fmt.Errorf("task %q due_at: %w", r.ID, err)
		}
		t.DueAt = mo.Some(due)
	}

	date := strings.TrimSpace(r.Date)
	switch {
	case date != "":
		d, err := timeutil.ParseDateKey(date, loc)
		if err != nil {
			return model.Task{}, fmt.Errorf("task %q date: %w", r.ID, err)
		}
		t.Date = timeutil.LocalDateKey(d)
	case t.DueAt.IsPresent():
		t.Date = timeutil.LocalDateKey(t.DueAt.MustGet())
	default:
		return model.Task{}, fmt.Errorf("task %q has neither date nor due_at", r.ID)
	}
	return t, nil
}

// optionalTimestamp parses bookkeeping times; unreadable values are dropped.
func optionalTimestamp(s string, loc *time.Location) mo.Option[time.Time] {
	if strings.TrimSpace(s) == "" {
		return mo.None[time.Time]()
	}
	t, err := parseTimestamp(s, loc)
	if err != nil {
		return mo.None[time.Time]()
	}
	return mo.Some(t)
}

func layerOrDefault(id string) string {
	return defaultString(strings.TrimSpace(id), DefaultLayerID)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
