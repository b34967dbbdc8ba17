// Package internal provides the App struct that wires all components of
// weektrack together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/valter-silva-au/weektrack/internal/cli"
	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/internal/observability"
	"github.com/valter-silva-au/weektrack/internal/storage"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

// DefaultHome is the data directory used when WT_HOME is unset.
const DefaultHome = "~/.weektrack"

// App holds all service dependencies of weektrack.
type App struct {
	BasePath string
	Config   *models.GlobalConfig

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	TaskStore    storage.TaskStore
	SessionStore storage.SessionStore

	// Core services
	Clock       core.Clock
	Diagnostics *core.DiagnosticBuffer
	TaskMgr     core.TaskManager
	Tracker     *core.Tracker

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of weektrack and opens the current
// week. basePath is the root directory where all data is stored (typically
// ~/.weektrack).
func NewApp(basePath string) (*App, error) {
	return newApp(basePath, core.SystemClock{})
}

func newApp(basePath string, clock core.Clock) (*App, error) {
	app := &App{BasePath: basePath, Clock: clock}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	for _, p := range []*string{&cfg.Calendar.Credentials, &cfg.Calendar.Token} {
		if *p == "" {
			continue
		}
		if *p, err = homedir.Expand(*p); err != nil {
			return nil, fmt.Errorf("expanding %s: %w", *p, err)
		}
	}
	app.Config = cfg
	loc := cfg.Engine.Loc()

	// --- Storage layer ---
	app.TaskStore = storage.NewTaskStore(basePath, loc)
	app.SessionStore = storage.NewSessionStore(basePath, loc)

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, "logs", "events.jsonl"))
	if err != nil {
		// Non-fatal: run without the event log.
		app.EventLog = nil
	}
	app.Diagnostics = &core.DiagnosticBuffer{}
	if app.EventLog != nil {
		app.Diagnostics.Next = &observability.DiagnosticLogger{Log: app.EventLog}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.DefaultAlertThresholds())
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.SlackWebhook != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.SlackWebhook, loc)
	}

	// --- Core services ---
	app.TaskMgr = core.NewTaskManager(clock, app.Diagnostics, cfg.RecentLimit)
	app.Tracker = core.NewTracker(cfg.Engine, clock, app.Diagnostics, app.TaskMgr, app.TaskStore, app.SessionStore)
	if err := app.Tracker.LoadTasks(); err != nil {
		app.closeLog()
		return nil, err
	}
	if _, err := app.Tracker.Open(clock.Now()); err != nil {
		app.closeLog()
		return nil, fmt.Errorf("opening current week: %w", err)
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Tracker = app.Tracker
	cli.Diagnostics = app.Diagnostics
	cli.SessionStore = app.SessionStore

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

func (a *App) closeLog() {
	if a.EventLog != nil {
		_ = a.EventLog.Close()
	}
}

// Close saves the open week and releases resources held by the App, such as
// the event log file handle.
func (a *App) Close() error {
	var err error
	if a.Tracker != nil {
		err = a.Tracker.Persist()
	}
	if a.EventLog != nil {
		if cerr := a.EventLog.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ResolveBasePath determines the weektrack data directory. It checks the
// WT_HOME env var, then falls back to ~/.weektrack.
func ResolveBasePath() (string, error) {
	home := os.Getenv("WT_HOME")
	if home == "" {
		home = DefaultHome
	}
	path, err := homedir.Expand(home)
	if err != nil {
		return "", fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return path, nil
}
