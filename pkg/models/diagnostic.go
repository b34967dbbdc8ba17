package models

import "time"

// Severity tags a diagnostic for the host.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a recoverable condition reported by the engine. The engine
// never aborts a multi-step repair because of one.
type Diagnostic struct {
	Time     time.Time      `json:"time"`
	Severity Severity       `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"msg"`
	Data     map[string]any `json:"data,omitempty"`
}

// CalendarCandidate is one entry offered by an external calendar feed.
type CalendarCandidate struct {
	TaskHint    string
	Start       time.Time
	End         time.Time
	ExternalID  string
	RecurringID string
	AllDay      bool
	Busy        bool
}
