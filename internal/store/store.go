// Package store loads the calendar's JSON data files into an immutable
// Snapshot and swaps it on reload. Readers never see a half-built snapshot.
package store

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/samber/mo"

	appLog "calplan/internal/log"
	"calplan/internal/model"
	"calplan/internal/recurrence"
	"calplan/internal/view"
)

// File names inside the data directory.
const (
	EventsFile   = "events.json"
	PatternsFile = "recurring_patterns.json"
	LayersFile   = "layers.json"
	TasksFile    = "tasks.json"
)

// Snapshot is one consistent view of the data files plus the events of
// subscribed feeds. It is never modified after it is published.
type Snapshot struct {
	// Events are plain events; series exceptions live in Exceptions.
	Events     []model.Event
	Patterns   []*recurrence.Projector
	Exceptions recurrence.ExceptionIndex
	Layers     []model.Layer
	// Tasks are ordered by date, then due time, then id.
	Tasks []model.Task
	// Subscribed holds expanded events of ICS feeds.
	Subscribed []model.Event

	LoadedAt time.Time
	// Skipped counts records dropped while loading.
	Skipped int
}

// Store owns the current snapshot.
type Store struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu   sync.RWMutex
	snap *Snapshot
}

// New returns a Store reading from dir with wall-clock values in loc. The
// store starts with an empty snapshot; call Reload to read the files.
func New(dir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		dir:  dir,
		loc:  loc,
		now:  time.Now,
		snap: &Snapshot{Layers: DefaultLayers()},
	}
}

// Location returns the display location.
func (s *Store) Location() *time.Location { return s.loc }

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reload reads the data files and publishes a new snapshot. Subscribed
// events carry over. On error the previous snapshot stays in place.
func (s *Store) Reload() error {
	next, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	next.Subscribed = s.snap.Subscribed
	s.snap = next
	s.mu.Unlock()

	appLog.Info("store reloaded",
		"events", len(next.Events),
		"patterns", len(next.Patterns),
		"exceptions", next.Exceptions.Len(),
		"layers", len(next.Layers),
		"tasks", len(next.Tasks),
		"skipped", next.Skipped,
	)
	return nil
}

// SetSubscribed replaces the subscribed events.
func (s *Store) SetSubscribed(events []model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.snap
	next.Subscribed = events
	s.snap = &next
}

func (s *Store) load() (*Snapshot, error) {
	var (
		events   map[string]eventRecord
		patterns map[string]patternRecord
		layers   map[string]layerRecord
		tasks    map[string]taskRecord
	)
	if err := readJSON(filepath.Join(s.dir, EventsFile), &events); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, PatternsFile), &patterns); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, LayersFile), &layers); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, TasksFile), &tasks); err != nil {
		return nil, err
	}

	snap := &Snapshot{LoadedAt: s.now()}

	for _, id := range sortedKeys(layers) {
		rec := layers[id]
		if rec.ID == "" {
			rec.ID = id
		}
		snap.Layers = append(snap.Layers, rec.toLayer())
	}
	if len(snap.Layers) == 0 {
		snap.Layers = DefaultLayers()
	}

	known := make(map[string]bool, len(patterns))
	for _, id := range sortedKeys(patterns) {
		rec := patterns[id]
		if rec.ID == "" {
			rec.ID = id
		}
		p, err := rec.toPattern(s.loc)
		if err == nil {
			var pr *recurrence.Projector
			if pr, err = recurrence.NewProjector(p, s.loc); err == nil {
				snap.Patterns = append(snap.Patterns, pr)
				known[p.ID] = true
				continue
			}
		}
		appLog.Warn("pattern skipped", "id", rec.ID, "err", err)
		snap.Skipped++
	}

	var excs []model.Exception
	for _, id := range sortedKeys(events) {
		rec := events[id]
		if rec.ID == "" {
			rec.ID = id
		}
		exc, ev, err := s.classify(rec, known)
		switch {
		case err != nil:
			appLog.Warn("event skipped", "id", rec.ID, "err", err)
			snap.Skipped++
		case exc.IsPresent():
			excs = append(excs, exc.MustGet())
		case ev.IsPresent():
			snap.Events = append(snap.Events, ev.MustGet())
		default:
			snap.Skipped++
		}
	}

	ix, err := recurrence.NewExceptionIndex(excs)
	if err != nil {
		appLog.Warn("exceptions dropped", "err", err)
		snap.Skipped += len(excs) - ix.Len()
	}
	snap.Exceptions = ix

	recurrence.SortEvents(snap.Events)

	for _, id := range sortedKeys(tasks) {
		rec := tasks[id]
		if rec.ID == "" {
			rec.ID = id
		}
		t, err := rec.toTask(s.loc)
		if err != nil {
			appLog.Warn("task skipped", "id", rec.ID, "err", err)
			snap.Skipped++
			continue
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	sortTasks(snap.Tasks)
	return snap, nil
}

// Window returns everything shown in r: plain events overlapping r, series
// occurrences starting in r with their exceptions applied, and subscribed
// events overlapping r. Events on hidden layers are left out.
func (snap *Snapshot) Window(r recurrence.Range) []model.Event {
	var out []model.Event
	for _, ev := range snap.Events {
		if overlaps(ev, r) {
			out = append(out, ev)
		}
	}
	out = append(out, recurrence.ExpandAll(snap.Patterns, snap.Exceptions, r)...)
	for _, ev := range snap.Subscribed {
		if overlaps(ev, r) {
			out = append(out, ev)
		}
	}
	out = view.FilterVisible(out, snap.Layers)
	recurrence.SortEvents(out)
	return out
}

// TasksFor returns the tasks planned for the YYYY-MM-DD date.
func (snap *Snapshot) TasksFor(date string) []model.Task {
	var out []model.Task
	for _, t := range snap.Tasks {
		if t.Date == date {
			out = append(out, t)
		}
	}
	return out
}

// Pattern finds a series by id.
func (snap *Snapshot) Pattern(id string) (*recurrence.Projector, bool) {
	i := slices.IndexFunc(snap.Patterns, func(p *recurrence.Projector) bool { return p.ID() == id })
	if i < 0 {
		return nil, false
	}
	return snap.Patterns[i], true
}

// Layer finds a layer by id.
func (snap *Snapshot) Layer(id string) (model.Layer, bool) {
	i := slices.IndexFunc(snap.Layers, func(l model.Layer) bool { return l.ID == id })
	if i < 0 {
		return model.Layer{}, false
	}
	return snap.Layers[i], true
}

// classify sorts one events.json record into a series exception, a plain
// event, or nothing. Records tied to a series that no longer exists are
// dropped, and so are stored copies of generated instances, which the
// projector recreates.
func (s *Store) classify(rec eventRecord, known map[string]bool) (mo.Option[model.Exception], mo.Option[model.Event], error) {
	noExc, noEv := mo.None[model.Exception](), mo.None[model.Event]()
	pid := rec.patternID()
	tied := rec.IsDeletionException || rec.IsMovedException || rec.IsRecurringInstance

	switch {
	case tied && pid == "":
		return noExc, noEv, fmt.Errorf("event %q is marked as part of a series but names none", rec.ID)
	case tied && !known[pid]:
		appLog.Debug("orphan series record dropped", "id", rec.ID, "pattern", pid)
		return noExc, noEv, nil
	case rec.IsRecurringInstance && !rec.IsMovedException:
		return noExc, noEv, nil
	}

	if (rec.IsDeletionException || rec.IsMovedException) && rec.OriginalOccurrenceDate == "" {
		return noExc, noEv, fmt.Errorf("exception %q has no original occurrence date", rec.ID)
	}
	if rec.IsDeletionException {
		return mo.Some(model.DeletedException(pid, rec.OriginalOccurrenceDate)), noEv, nil
	}

	ev, err := rec.toEvent(s.loc)
	if err != nil {
		return noExc, noEv, err
	}
	if rec.IsMovedException {
		return mo.Some(model.MovedException(pid, rec.OriginalOccurrenceDate, ev)), noEv, nil
	}
	return noExc, mo.Some(ev), nil
}

func sortTasks(tasks []model.Task) {
	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		da, aok := a.DueAt.Get()
		db, bok := b.DueAt.Get()
		switch {
		case aok && bok:
			if c := da.Compare(db); c != 0 {
				return c
			}
		case aok:
			return -1
		case bok:
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func overlaps(ev model.Event, r recurrence.Range) bool {
	if !ev.End.After(ev.Start) {
		return r.Contains(ev.Start)
	}
	return ev.Start.Before(r.End) && ev.End.After(r.Start)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		appLog.Debug("data file missing", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
