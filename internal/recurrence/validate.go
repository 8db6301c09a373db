package recurrence

import (
	"errors"
	"fmt"

	"calplan/internal/model"
	"calplan/internal/timeutil"
)

// Configuration errors. NewProjector wraps every one of them in
// ErrInvalidPattern so callers can test for either.
var (
	ErrInvalidPattern      = errors.New("invalid recurrence pattern")
	ErrMissingID           = errors.New("missing pattern id")
	ErrMissingFirstDate    = errors.New("missing first occurrence date")
	ErrInvalidInterval     = errors.New("interval must be >= 1")
	ErrUnknownType         = errors.New("unknown recurrence type")
	ErrInvalidEndCondition = errors.New("malformed end condition")
	ErrInvalidStartTime    = errors.New("invalid start time")
	ErrInvalidDuration     = errors.New("invalid duration")
)

// Validate reports the first configuration error in p, or nil.
func Validate(p model.RecurrencePattern) error {
	if err := validate(p); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidPattern, p.ID, err)
	}
	return nil
}

func validate(p model.RecurrencePattern) error {
	if p.ID == "" {
		return ErrMissingID
	}
	if p.FirstOccurrence.IsZero() {
		return ErrMissingFirstDate
	}
	if p.Interval < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidInterval, p.Interval)
	}

	switch p.Type {
	case model.Daily, model.Weekly, model.Monthly:
	default:
		return fmt.Errorf("%w %q", ErrUnknownType, p.Type)
	}

	switch p.EndType {
	case model.EndNever:
		if p.EndCount.IsPresent() || p.EndDate.IsPresent() {
			return fmt.Errorf("%w: never-ending series carries an end count or date", ErrInvalidEndCondition)
		}
	case model.EndCount:
		n, ok := p.EndCount.Get()
		if !ok || n < 1 {
			return fmt.Errorf("%w: count end needs a positive end count", ErrInvalidEndCondition)
		}
		if p.EndDate.IsPresent() {
			return fmt.Errorf("%w: count end carries an end date", ErrInvalidEndCondition)
		}
	case model.EndDate:
		d, ok := p.EndDate.Get()
		if !ok || d.IsZero() {
			return fmt.Errorf("%w: date end needs an end date", ErrInvalidEndCondition)
		}
		if p.EndCount.IsPresent() {
			return fmt.Errorf("%w: date end carries an end count", ErrInvalidEndCondition)
		}
		if timeutil.LocalDateKey(d) < timeutil.LocalDateKey(p.FirstOccurrence) {
			return fmt.Errorf("%w: end date before first occurrence", ErrInvalidEndCondition)
		}
	default:
		return fmt.Errorf("%w: unknown end type %q", ErrInvalidEndCondition, p.EndType)
	}

	if p.AllDay {
		if p.DurationMinutes < 0 {
			return fmt.Errorf("%w (got %d minutes)", ErrInvalidDuration, p.DurationMinutes)
		}
		return nil
	}
	if _, _, err := timeutil.ParseClock(p.StartTime); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStartTime, err)
	}
	if p.DurationMinutes <= 0 {
		return fmt.Errorf("%w (got %d minutes)", ErrInvalidDuration, p.DurationMinutes)
	}
	return nil
}
