package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Event is a single calendar entry, either stored directly or produced by
// recurrence projection. The core packages only read events and derive new
// values from them.
type Event struct {
	ID    string
	Title string

	Start  time.Time
	End    time.Time
	AllDay bool

	Location    string
	Description string

	LayerID string

	// Back-references to the recurring series this event belongs to.
	IsRecurringInstance bool
	PatternID           string
	OccurrenceDate      string // YYYY-MM-DD of the original occurrence

	IsMovedException    bool
	IsDeletionException bool
}

// ErrInvalidEvent is returned by Event.Validate.
var ErrInvalidEvent = errors.New("invalid event")

// Validate checks End > Start for timed events.
func (e Event) Validate() error {
	if e.AllDay {
		return nil
	}
	if !e.End.After(e.Start) {
		return fmt.Errorf("%w %q: end %s is not after start %s",
			ErrInvalidEvent, e.ID, e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
	}
	return nil
}

// RecurrenceType is the step granularity of a pattern.
type RecurrenceType string

const (
	Daily   RecurrenceType = "daily"
	Weekly  RecurrenceType = "weekly"
	Monthly RecurrenceType = "monthly"
)

// EndType selects how a series terminates.
type EndType string

const (
	EndNever EndType = "never"
	EndCount EndType = "count"
	EndDate  EndType = "date"
)

// RecurrencePattern describes a native recurring series.
type RecurrencePattern struct {
	ID    string
	Title string

	// FirstOccurrence is the local date of the first occurrence; its clock
	// time is ignored.
	FirstOccurrence time.Time
	// StartTime is "HH:MM" in the display location.
	StartTime       string
	DurationMinutes int
	AllDay          bool

	Type     RecurrenceType
	Interval int

	EndType  EndType
	EndCount mo.Option[int]
	EndDate  mo.Option[time.Time]

	Location    string
	Description string
	LayerID     string
}

// ExceptionKind tags an Exception.
type ExceptionKind int

const (
	ExceptionMoved ExceptionKind = iota + 1
	ExceptionDeleted
)

func (k ExceptionKind) String() string {
	switch k {
	case ExceptionMoved:
		return "moved"
	case ExceptionDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ExceptionKey identifies one occurrence of one pattern.
type ExceptionKey struct {
	PatternID    string
	OriginalDate string // YYYY-MM-DD
}

// Exception overrides a single occurrence of a pattern. A moved exception
// carries its replacement event; a deleted one carries none.
type Exception struct {
	Key         ExceptionKey
	Kind        ExceptionKind
	Replacement mo.Option[Event]
}

// MovedException builds a moved override whose replacement is ev.
func MovedException(patternID, originalDate string, ev Event) Exception {
	ev.PatternID = patternID
	ev.OccurrenceDate = originalDate
	ev.IsMovedException = true
	ev.IsDeletionException = false
	return Exception{
		Key:         ExceptionKey{PatternID: patternID, OriginalDate: originalDate},
		Kind:        ExceptionMoved,
		Replacement: mo.Some(ev),
	}
}

// DeletedException builds an override that suppresses an occurrence.
func DeletedException(patternID, originalDate string) Exception {
	return Exception{
		Key:         ExceptionKey{PatternID: patternID, OriginalDate: originalDate},
		Kind:        ExceptionDeleted,
		Replacement: mo.None[Event](),
	}
}

// Layer groups events for colouring and visibility toggling.
type Layer struct {
	ID      string
	Name    string
	Color   string
	Visible bool
}

// TaskStatusPlanned is the status of a task that names none.
const TaskStatusPlanned = "planned"

// Task is a to-do item planned for one local date.
type Task struct {
	ID      string
	Title   string
	Details string
	Status  string
	// Date is the YYYY-MM-DD the task is planned for.
	Date  string
	DueAt mo.Option[time.Time]

	CreatedAt mo.Option[time.Time]
	UpdatedAt mo.Option[time.Time]
}
