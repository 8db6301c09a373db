package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"calplan/internal/ics"
	"calplan/internal/layout"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment variables override a few deployment fields.

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup, caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Layer is the layer the feed's events are shown on.
	Layer string `yaml:"layer" json:"layer"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LayoutConfig holds the day grid metrics, in pixels.
type LayoutConfig struct {
	CanvasWidth    float64 `yaml:"canvas_width" json:"canvas_width"`
	Zoom           float64 `yaml:"zoom" json:"zoom"`
	Gap            float64 `yaml:"gap" json:"gap"`
	LeftPadding    float64 `yaml:"left_padding" json:"left_padding"`
	RightPadding   float64 `yaml:"right_padding" json:"right_padding"`
	MinColumnWidth float64 `yaml:"min_column_width" json:"min_column_width"`
}

// MonthConfig controls the month grid.
type MonthConfig struct {
	MaxEventsPerCell int `yaml:"max_events_per_cell" json:"max_events_per_cell"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in calendar views. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for reloading data files and ICS feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of future days that feeds are expanded
	// over and /calendar.ics exports.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// ShowAllDay toggles the all-day section of day and week views.
	ShowAllDay bool `yaml:"show_all_day" json:"show_all_day"`

	// DataDir holds events.json, recurring_patterns.json and layers.json.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// CacheDir holds downloaded ICS bodies.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`
	Month  MonthConfig  `yaml:"month" json:"month"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// envOverrides are read from the process environment by ApplyEnv.
type envOverrides struct {
	Listen   string `env:"CALPLAN_LISTEN"`
	Timezone string `env:"CALPLAN_TIMEZONE"`
	DataDir  string `env:"CALPLAN_DATA_DIR"`
	CacheDir string `env:"CALPLAN_CACHE_DIR"`
	LogLevel string `env:"CALPLAN_LOG_LEVEL"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		WeekStart:   "monday",
		RefreshCron: "*/15 * * * *",
		HorizonDays: 90,
		ShowAllDay:  true,
		DataDir:     "./data",
		CacheDir:    "./var/ics-cache",
		LogLevel:    "info",
		Layout:      defaultLayout(),
		Month:       MonthConfig{MaxEventsPerCell: 3},
		ICS:         []ICSConfig{},
		BasicAuth:   nil,
	}
}

func defaultLayout() LayoutConfig {
	s := layout.DefaultScale(800)
	return LayoutConfig{
		CanvasWidth:    s.CanvasWidthPx,
		Zoom:           s.MinuteHeightPx,
		Gap:            s.GapPx,
		LeftPadding:    s.LeftPaddingPx,
		RightPadding:   s.RightPaddingPx,
		MinColumnWidth: s.MinColumnWidthPx,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	l := &c.Layout
	if l.CanvasWidth <= 0 {
		l.CanvasWidth = def.Layout.CanvasWidth
	}
	if l.Zoom == 0 {
		l.Zoom = def.Layout.Zoom
	}
	l.Zoom = layout.ClampZoom(l.Zoom, layout.MinZoom, layout.MaxZoom)
	if l.Gap < 0 {
		l.Gap = def.Layout.Gap
	}
	if l.LeftPadding < 0 {
		l.LeftPadding = def.Layout.LeftPadding
	}
	if l.RightPadding < 0 {
		l.RightPadding = def.Layout.RightPadding
	}
	if l.MinColumnWidth <= 0 {
		l.MinColumnWidth = def.Layout.MinColumnWidth
	}

	if c.Month.MaxEventsPerCell <= 0 {
		c.Month.MaxEventsPerCell = def.Month.MaxEventsPerCell
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
	}
}

// ApplyEnv overrides fields from CALPLAN_* environment variables. Unset
// variables leave the file value in place.
func (c *Config) ApplyEnv() error {
	ov, err := env.ParseAs[envOverrides]()
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for _, f := range []struct {
		dst *string
		val string
	}{
		{&c.Listen, ov.Listen},
		{&c.Timezone, ov.Timezone},
		{&c.DataDir, ov.DataDir},
		{&c.CacheDir, ov.CacheDir},
		{&c.LogLevel, ov.LogLevel},
	} {
		if f.val != "" {
			*f.dst = f.val
		}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// FirstWeekday maps WeekStart onto a time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Scale returns the configured day grid metrics.
func (c *Config) Scale() layout.Scale {
	return layout.Scale{
		MinuteHeightPx:   c.Layout.Zoom,
		CanvasWidthPx:    c.Layout.CanvasWidth,
		GapPx:            c.Layout.Gap,
		LeftPaddingPx:    c.Layout.LeftPadding,
		RightPaddingPx:   c.Layout.RightPadding,
		MinColumnWidthPx: c.Layout.MinColumnWidth,
	}
}

// Sources converts the subscriptions into fetchable sources.
func (c *Config) Sources() []ics.Source {
	out := make([]ics.Source, 0, len(c.ICS))
	for _, s := range c.ICS {
		out = append(out, ics.Source{ID: s.ID, URL: s.URL, LayerID: s.Layer})
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied by the caller via ApplyEnv so that they
// never end up in the saved file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
