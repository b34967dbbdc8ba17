package observability

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/weektrack/internal/core"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert is a health condition found in the event log.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire. Window bounds how far back
// the log is read.
type AlertThresholds struct {
	Window            time.Duration `yaml:"window" json:"window"`
	MaxRepairs        int           `yaml:"max_repairs" json:"max_repairs"`
	MaxLoadProblems   int           `yaml:"max_load_problems" json:"max_load_problems"`
	MaxImportSkipped  int           `yaml:"max_import_skipped" json:"max_import_skipped"`
	MaxPersistFailure int           `yaml:"max_persist_failures" json:"max_persist_failures"`
}

// DefaultAlertThresholds returns the thresholds used by wt doctor.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		Window:            7 * 24 * time.Hour,
		MaxRepairs:        20,
		MaxLoadProblems:   0,
		MaxImportSkipped:  10,
		MaxPersistFailure: 0,
	}
}

// AlertEngine evaluates health conditions against the event log.
type AlertEngine interface {
	Evaluate(now time.Time) ([]Alert, error)
}

type alertEngine struct {
	metrics    MetricsCalculator
	log        EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates an AlertEngine reading from log.
func NewAlertEngine(log EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		metrics:    NewMetricsCalculator(log),
		log:        log,
		thresholds: thresholds,
	}
}

// Evaluate returns the alerts triggered within the window ending at now,
// most severe first.
func (ae *alertEngine) Evaluate(now time.Time) ([]Alert, error) {
	m, err := ae.metrics.Calculate(now.Add(-ae.thresholds.Window))
	if err != nil {
		return nil, fmt.Errorf("evaluating alerts: %w", err)
	}
	days := int(ae.thresholds.Window / (24 * time.Hour))

	var alerts []Alert
	if m.PersistFailures > ae.thresholds.MaxPersistFailure {
		msg := fmt.Sprintf("%d saves failed in the last %d days", m.PersistFailures, days)
		if last, ok := ae.lastMessage(now, core.CodePersistFailed); ok {
			msg += ": " + last
		}
		alerts = append(alerts, Alert{
			ID:          "persist-failed",
			Condition:   "persist_failed",
			Severity:    SeverityHigh,
			Message:     msg,
			TriggeredAt: now,
		})
	}
	if m.LoadProblems > ae.thresholds.MaxLoadProblems {
		alerts = append(alerts, Alert{
			ID:          "load-problems",
			Condition:   "corrupt_records",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%d inconsistent records were dropped or repaired on load", m.LoadProblems),
			TriggeredAt: now,
		})
	}
	if m.Repairs > ae.thresholds.MaxRepairs {
		alerts = append(alerts, Alert{
			ID:          "repairs",
			Condition:   "frequent_repairs",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("%d normalisation repairs in the last %d days", m.Repairs, days),
			TriggeredAt: now,
		})
	}
	if m.ImportSkipped > ae.thresholds.MaxImportSkipped {
		alerts = append(alerts, Alert{
			ID:          "import-skipped",
			Condition:   "import_skipped",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("%d calendar entries were skipped on import", m.ImportSkipped),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}

func (ae *alertEngine) lastMessage(now time.Time, code string) (string, bool) {
	since := now.Add(-ae.thresholds.Window)
	events, err := ae.log.Read(EventFilter{Since: &since, Type: code})
	if err != nil || len(events) == 0 {
		return "", false
	}
	return events[len(events)-1].Message, true
}
