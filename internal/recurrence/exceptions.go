package recurrence

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/mo"

	"calplan/internal/model"
)

var (
	// ErrConflictingException means two exceptions share one
	// (pattern, original date) key.
	ErrConflictingException = errors.New("conflicting exception")
	// ErrInvalidException means a moved exception lacks its replacement, or
	// a deleted one carries one.
	ErrInvalidException = errors.New("invalid exception")
)

// ExceptionIndex maps (pattern id, original date) to the override for that
// occurrence. The zero value is an empty index.
type ExceptionIndex struct {
	byKey map[model.ExceptionKey]model.Exception
	moved map[string][]model.Event
}

// ExceptionCounts summarises the overrides of one pattern.
type ExceptionCounts struct {
	Deletions int `json:"deletions"`
	Moves     int `json:"moves"`
	Total     int `json:"total"`
}

// NewExceptionIndex indexes excs. Conflicting or malformed entries are left
// out and reported together in the returned error; the index holds every
// entry that was accepted, so callers may log the error and keep going.
func NewExceptionIndex(excs []model.Exception) (ExceptionIndex, error) {
	ix := ExceptionIndex{
		byKey: make(map[model.ExceptionKey]model.Exception, len(excs)),
		moved: make(map[string][]model.Event),
	}

	var errs []error
	for _, exc := range excs {
		if err := checkException(exc); err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := ix.byKey[exc.Key]; dup {
			errs = append(errs, fmt.Errorf("%w: pattern %q date %s already has a %s exception, dropping %s",
				ErrConflictingException, exc.Key.PatternID, exc.Key.OriginalDate, prev.Kind, exc.Kind))
			continue
		}
		ix.byKey[exc.Key] = exc
		if ev, ok := exc.Replacement.Get(); ok {
			ix.moved[exc.Key.PatternID] = append(ix.moved[exc.Key.PatternID], ev)
		}
	}
	return ix, errors.Join(errs...)
}

func checkException(exc model.Exception) error {
	if exc.Key.PatternID == "" || exc.Key.OriginalDate == "" {
		return fmt.Errorf("%w: empty key %+v", ErrInvalidException, exc.Key)
	}
	switch exc.Kind {
	case model.ExceptionMoved:
		if exc.Replacement.IsAbsent() {
			return fmt.Errorf("%w: moved exception %+v has no replacement", ErrInvalidException, exc.Key)
		}
	case model.ExceptionDeleted:
		if exc.Replacement.IsPresent() {
			return fmt.Errorf("%w: deleted exception %+v carries a replacement", ErrInvalidException, exc.Key)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d for %+v", ErrInvalidException, exc.Kind, exc.Key)
	}
	return nil
}

// Lookup returns the override for one occurrence. A miss is not an error.
func (ix ExceptionIndex) Lookup(patternID, date string) mo.Option[model.Exception] {
	exc, ok := ix.byKey[model.ExceptionKey{PatternID: patternID, OriginalDate: date}]
	if !ok {
		return mo.None[model.Exception]()
	}
	return mo.Some(exc)
}

// Moved returns the replacement events of a pattern's moved occurrences.
func (ix ExceptionIndex) Moved(patternID string) []model.Event {
	return ix.moved[patternID]
}

// Counts tallies the overrides recorded for patternID.
func (ix ExceptionIndex) Counts(patternID string) ExceptionCounts {
	var c ExceptionCounts
	for key, exc := range ix.byKey {
		if key.PatternID != patternID {
			continue
		}
		switch exc.Kind {
		case model.ExceptionMoved:
			c.Moves++
		case model.ExceptionDeleted:
			c.Deletions++
		}
	}
	c.Total = c.Moves + c.Deletions
	return c
}

// Deleted returns the original dates suppressed for patternID, sorted.
func (ix ExceptionIndex) Deleted(patternID string) []string {
	var out []string
	for key, exc := range ix.byKey {
		if key.PatternID == patternID && exc.Kind == model.ExceptionDeleted {
			out = append(out, key.OriginalDate)
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of indexed exceptions.
func (ix ExceptionIndex) Len() int { return len(ix.byKey) }
