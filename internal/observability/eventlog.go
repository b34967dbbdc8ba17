package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// Log levels written to the event log.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event is one line of the event log. Type carries the diagnostic code,
// e.g. "activity.started" or "normalise.overnight".
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter selects events. Zero fields match everything; Prefix matches
// the leading part of Type, so "normalise." selects every repair.
type EventFilter struct {
	Since  *time.Time
	Until  *time.Time
	Type   string
	Prefix string
	Level  string
}

// EventLog appends events and reads them back.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

type jsonlEventLog struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewJSONLEventLog opens, creating if needed, the JSONL log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("opening event log: creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("writing event %s: %w", event.Type, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing event %s: %w", event.Type, err)
	}
	return nil
}

// Read returns matching events in log order. Lines that do not decode are
// skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev Event
		if json.Unmarshal(sc.Bytes(), &ev) != nil {
			continue
		}
		if filter.matches(ev) {
			out = append(out, ev)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return out, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func (f EventFilter) matches(ev Event) bool {
	switch {
	case f.Since != nil && ev.Time.Before(*f.Since):
		return false
	case f.Until != nil && ev.Time.After(*f.Until):
		return false
	case f.Type != "" && ev.Type != f.Type:
		return false
	case f.Prefix != "" && !strings.HasPrefix(ev.Type, f.Prefix):
		return false
	case f.Level != "" && ev.Level != f.Level:
		return false
	}
	return true
}

// DiagnosticLogger writes engine diagnostics to an event log. Write errors
// go to OnError when set and are otherwise dropped; a failing log must not
// interrupt the engine.
type DiagnosticLogger struct {
	Log     EventLog
	OnError func(error)
}

// Report implements the engine's reporter contract.
func (d *DiagnosticLogger) Report(diag models.Diagnostic) {
	err := d.Log.Write(Event{
		Time:    diag.Time,
		Level:   levelFor(diag.Severity),
		Type:    diag.Code,
		Message: diag.Message,
		Data:    diag.Data,
	})
	if err != nil && d.OnError != nil {
		d.OnError(err)
	}
}

func levelFor(sev models.Severity) string {
	switch sev {
	case models.SeverityWarning:
		return LevelWarn
	case models.SeverityError:
		return LevelError
	default:
		return LevelInfo
	}
}
