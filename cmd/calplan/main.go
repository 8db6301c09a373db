package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calplan/internal/config"
	"calplan/internal/ics"
	"calplan/internal/layout"
	appLog "calplan/internal/log"
	"calplan/internal/recurrence"
	"calplan/internal/refresh"
	"calplan/internal/store"
	"calplan/internal/timeutil"
	"calplan/internal/view"
	"calplan/internal/web"
)

// flagConfig holds CLI flag values; set flags override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	date       string
	width      float64
	zoom       float64
}

func main() {
	appLog.Info("calplan starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(); err != nil {
		appLog.Error("failed to apply environment", err)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.width > 0 {
		conf.Layout.CanvasWidth = flags.width
	}
	if flags.zoom > 0 {
		conf.Layout.Zoom = layout.ClampZoom(flags.zoom, layout.MinZoom, layout.MaxZoom)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("invalid timezone", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"data_dir", conf.DataDir,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(conf.DataDir, loc)
	refresher := refresh.New(st, ics.NewFetcher(conf.CacheDir), conf.Sources(), conf.HorizonDays)
	if err := refresher.RunOnce(ctx); err != nil {
		appLog.Warn("initial refresh incomplete", "err", err)
	}

	if flags.once {
		if err := runOnce(conf, st, flags.date, time.Now()); err != nil {
			appLog.Error("once failed", err)
			os.Exit(1)
		}
		return
	}

	if err := refresher.Start(ctx, conf.RefreshCron); err != nil {
		appLog.Error("failed to schedule refresh", err)
		os.Exit(1)
	}
	if err := web.Run(ctx, conf, st); err != nil {
		appLog.Error("http server failed", err)
		os.Exit(1)
	}
	appLog.Info("calplan exiting")
}

type onceBlock struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Column      int    `json:"column"`
	ColumnCount int    `json:"column_count"`
	layout.Rect
}

type onceSeries struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Recurrence string     `json:"recurrence"`
	Next       *time.Time `json:"next,omitempty"`
}

type onceOutput struct {
	Date     string       `json:"date"`
	AllDay   []string     `json:"all_day"`
	Agenda   []string     `json:"agenda"`
	Blocks   []onceBlock  `json:"blocks"`
	Tasks    []string     `json:"tasks"`
	Upcoming []onceSeries `json:"upcoming"`
}

// runOnce prints the layout of one day and the next occurrence of every
// series as JSON on stdout.
func runOnce(conf *config.Config, st *store.Store, date string, now time.Time) error {
	loc := st.Location()
	day := timeutil.StartOfDay(now.In(loc))
	if date != "" {
		d, err := timeutil.ParseDateKey(date, loc)
		if err != nil {
			return err
		}
		day = d
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dayReport(conf, st.Snapshot(), day, now))
}

// dayReport builds the -once output for the local date of day. The agenda
// lists the events starting that day in month cell order.
func dayReport(conf *config.Config, snap *store.Snapshot, day, now time.Time) onceOutput {
	loc := day.Location()
	events := snap.Window(recurrence.Range{Start: day.AddDate(0, 0, -1), End: day.AddDate(0, 0, 1)})
	d := layout.Day(events, day, conf.Scale())

	out := onceOutput{
		Date:     d.Date,
		AllDay:   []string{},
		Agenda:   []string{},
		Blocks:   []onceBlock{},
		Tasks:    []string{},
		Upcoming: []onceSeries{},
	}
	for _, ev := range view.EventsForDay(events, day) {
		out.Agenda = append(out.Agenda, view.Label(ev, loc))
	}
	for _, t := range snap.TasksFor(d.Date) {
		out.Tasks = append(out.Tasks, fmt.Sprintf("[%s] %s", t.Status, t.Title))
	}
	for _, ev := range d.AllDay {
		out.AllDay = append(out.AllDay, ev.Title)
	}
	for _, b := range d.Blocks {
		out.Blocks = append(out.Blocks, onceBlock{
			ID:          b.Event.ID,
			Title:       b.Event.Title,
			Start:       b.Event.Start.In(loc).Format("15:04"),
			End:         b.Event.End.In(loc).Format("15:04"),
			Column:      b.Column,
			ColumnCount: b.ColumnCount,
			Rect:        b.Rect,
		})
	}
	for _, p := range snap.Patterns {
		s := onceSeries{ID: p.ID(), Title: p.Pattern().Title, Recurrence: recurrence.Describe(p.Pattern())}
		if next, ok := p.NextRemaining(now).Get(); ok {
			s.Next = &next
		}
		out.Upcoming = append(out.Upcoming, s)
	}
	return out
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh once, print the day layout as JSON and exit")
	flag.StringVar(&cfg.date, "date", "", "Day for -once as YYYY-MM-DD (default today)")
	flag.Float64Var(&cfg.width, "width", 0, "Canvas width in pixels (overrides config if set)")
	flag.Float64Var(&cfg.zoom, "zoom", 0, "Pixels per minute, clamped to [0.4, 1.2] (overrides config if set)")

	flag.Parse()

	return cfg
}
