package cli

import (
	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/internal/observability"
	"github.com/valter-silva-au/weektrack/internal/storage"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath     string
	Config       *models.GlobalConfig
	Tracker      *core.Tracker
	Diagnostics  *core.DiagnosticBuffer
	SessionStore storage.SessionStore
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// NewCalendarFeed builds the calendar feed for import. Tests replace it.
var NewCalendarFeed = googleCalendarFeed
