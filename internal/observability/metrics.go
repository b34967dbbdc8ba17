package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/weektrack/internal/core"
)

// Metrics summarises the event log over a period.
type Metrics struct {
	ActivitiesStarted   int            `json:"activities_started"`
	ActivitiesPaused    int            `json:"activities_paused"`
	ActivitiesContinued int            `json:"activities_continued"`
	Repairs             int            `json:"repairs"`
	RepairsByKind       map[string]int `json:"repairs_by_kind"`
	LoadProblems        int            `json:"load_problems"`
	RemindersDue        int            `json:"reminders_due"`
	EventsDelayed       int            `json:"events_delayed"`
	Imported            int            `json:"imported"`
	ImportSkipped       int            `json:"import_skipped"`
	PersistFailures     int            `json:"persist_failures"`
	NotifyFailures      int            `json:"notify_failures"`
	Warnings            int            `json:"warnings"`
	Errors              int            `json:"errors"`
	EventCount          int            `json:"event_count"`
	OldestEvent         *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent         *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	log EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from log.
func NewMetricsCalculator(log EventLog) MetricsCalculator {
	return &metricsCalculator{log: log}
}

// Calculate counts the events logged since the given time.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.log.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("calculating metrics: %w", err)
	}

	m := &Metrics{RepairsByKind: make(map[string]int), EventCount: len(events)}
	for i := range events {
		ev := events[i]
		if m.OldestEvent == nil || ev.Time.Before(*m.OldestEvent) {
			m.OldestEvent = &events[i].Time
		}
		if m.NewestEvent == nil || ev.Time.After(*m.NewestEvent) {
			m.NewestEvent = &events[i].Time
		}
		switch ev.Level {
		case LevelWarn:
			m.Warnings++
		case LevelError:
			m.Errors++
		}

		switch {
		case ev.Type == core.CodeActivityStarted:
			m.ActivitiesStarted++
		case ev.Type == core.CodeActivityPaused:
			m.ActivitiesPaused++
		case ev.Type == core.CodeActivityContinued:
			m.ActivitiesContinued++
		case ev.Type == core.CodeReminderDue:
			m.RemindersDue++
		case ev.Type == core.CodeEventDelayed:
			m.EventsDelayed++
		case ev.Type == core.CodeImported:
			m.Imported++
		case ev.Type == core.CodeImportSkipped:
			m.ImportSkipped++
		case ev.Type == core.CodePersistFailed:
			m.PersistFailures++
		case ev.Type == core.CodeNotifyFailed:
			m.NotifyFailures++
		case strings.HasPrefix(ev.Type, "normalise."):
			m.Repairs++
			m.RepairsByKind[strings.TrimPrefix(ev.Type, "normalise.")]++
		case strings.HasPrefix(ev.Type, "load."):
			m.LoadProblems++
		}
	}
	return m, nil
}
