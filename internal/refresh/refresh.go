// Package refresh reloads the data files and the subscribed ICS feeds on a
// cron schedule and publishes the result into the store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"calplan/internal/ics"
	appLog "calplan/internal/log"
	"calplan/internal/recurrence"
	"calplan/internal/store"
	"calplan/internal/timeutil"
)

// BackfillDays is how far before today feeds are expanded, so the month
// view of the current month has its past days filled in.
const BackfillDays = 31

// Refresher runs one refresh pass at a time.
type Refresher struct {
	store       *store.Store
	fetcher     *ics.Fetcher
	sources     []ics.Source
	horizonDays int
	now         func() time.Time

	// mu serialises passes.
	mu sync.Mutex

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New returns a Refresher expanding feeds up to horizonDays after today.
func New(st *store.Store, fetcher *ics.Fetcher, sources []ics.Source, horizonDays int) *Refresher {
	return &Refresher{
		store:       st,
		fetcher:     fetcher,
		sources:     sources,
		horizonDays: max(horizonDays, 1),
		now:         time.Now,
	}
}

// Window is the range feeds are expanded over for a pass at now.
func Window(now time.Time, horizonDays int) recurrence.Range {
	today := timeutil.StartOfDay(now)
	return recurrence.Range{
		Start: today.AddDate(0, 0, -BackfillDays),
		End:   today.AddDate(0, 0, horizonDays+1),
	}
}

// RunOnce reloads the data files, then fetches, parses and expands every
// feed. A failed reload keeps the previous snapshot and the feeds are still
// refreshed. Feeds that fail drop out of the subscribed events until the
// next pass; the cache usually covers them.
func (r *Refresher) RunOnce(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.now()
	var errs []error
	if err := r.store.Reload(); err != nil {
		appLog.Error("store reload failed", err)
		errs = append(errs, err)
	}

	if len(r.sources) == 0 {
		r.store.SetSubscribed(nil)
		return errors.Join(errs...)
	}

	loc := r.store.Location()
	results, fetchErrs := r.fetcher.FetchAll(ctx, r.sources)
	errs = append(errs, fetchErrs...)

	var parsed []ics.ParsedEvent
	for _, res := range results {
		evs, err := ics.ParseICS(res.Source, res.Body, loc)
		if err != nil {
			appLog.Error("ics parse failed", err, "source", res.Source.ID)
			errs = append(errs, fmt.Errorf("source %s: %w", res.Source.ID, err))
			continue
		}
		parsed = append(parsed, evs...)
	}

	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: loc,
		Range:           Window(started.In(loc), r.horizonDays),
	})
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	r.store.SetSubscribed(expanded.Events)

	appLog.Info("refresh completed",
		"sources", len(r.sources),
		"fetched", len(results),
		"events", len(expanded.Events),
		"truncated", len(expanded.TruncatedEvents),
		"errors", len(errs),
		"took", r.now().Sub(started).Round(time.Millisecond),
	)
	return errors.Join(errs...)
}

// Start runs RunOnce on a cron schedule in the store's location. A tick
// that fires while a pass is still running is skipped. The scheduler
// stops when ctx is done.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(r.store.Location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		// Errors are logged inside RunOnce.
		_ = r.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}

	r.cronMu.Lock()
	r.cron = c
	r.cronMu.Unlock()
	c.Start()
	appLog.Info("refresh scheduled", "cron", schedule)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Info("refresh scheduler stopped")
	}()
	return nil
}

// NextRun reports when the scheduler fires next.
func (r *Refresher) NextRun() (time.Time, bool) {
	r.cronMu.Lock()
	c := r.cron
	r.cronMu.Unlock()
	if c == nil {
		return time.Time{}, false
	}
	entries := c.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}

// cronLogger routes the scheduler's own messages into the app log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
