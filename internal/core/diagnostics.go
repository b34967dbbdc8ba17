package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// Diagnostic codes reported by the engine.
const (
	CodeDanglingEvent     = "load.dangling_event"
	CodeDanglingActivity  = "load.dangling_activity"
	CodeDanglingParent    = "load.dangling_parent"
	CodeUnknownTask       = "load.unknown_task"
	CodeDuplicateID       = "load.duplicate_id"
	CodeMembership        = "load.membership"
	CodeMultipleCurrent   = "load.multiple_current"
	CodeUnfinished        = "normalise.unfinished"
	CodeOvernight         = "normalise.overnight"
	CodeJoined            = "normalise.joined"
	CodeOrderRepaired     = "normalise.order"
	CodeCollected         = "normalise.collected"
	CodeNotRunnable       = "task.not_runnable"
	CodeTaskState         = "task.state"
	CodeActivityStarted   = "activity.started"
	CodeActivityPaused    = "activity.paused"
	CodeActivityContinued = "activity.continued"
	CodeReminderDue       = "reminder.due"
	CodeEventDelayed      = "event.delayed"
	CodeActionStarted     = "event.action_started"
	CodeImportSkipped     = "import.skipped"
	CodeImported          = "import.created"
	CodePersistFailed     = "persist.failed"
	CodeNotifyFailed      = "notify.failed"
	CodeInvalidOperation  = "operation.rejected"
)

// Reporter receives diagnostics. Implementations must not call back into the
// engine.
type Reporter interface {
	Report(d models.Diagnostic)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(d models.Diagnostic)

// Report calls f.
func (f ReporterFunc) Report(d models.Diagnostic) { f(d) }

type nopReporter struct{}

func (nopReporter) Report(models.Diagnostic) {}

// DiagnosticBuffer collects diagnostics in memory, optionally forwarding them.
// It is safe for concurrent use; Next must be too.
type DiagnosticBuffer struct {
	Next Reporter

	mu    sync.Mutex
	items []models.Diagnostic
}

// Report stores d and forwards it.
func (b *DiagnosticBuffer) Report(d models.Diagnostic) {
	b.mu.Lock()
	b.items = append(b.items, d)
	b.mu.Unlock()
	if b.Next != nil {
		b.Next.Report(d)
	}
}

// Items returns the collected diagnostics in report order.
func (b *DiagnosticBuffer) Items() []models.Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Diagnostic(nil), b.items...)
}

// Count returns how many diagnostics of severity sev were collected.
func (b *DiagnosticBuffer) Count(sev models.Severity) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, d := range b.items {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// Reset drops the collected diagnostics.
func (b *DiagnosticBuffer) Reset() {
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
}

func report(r Reporter, now time.Time, sev models.Severity, code string, data map[string]any, format string, args ...any) {
	if r == nil {
		return
	}
	r.Report(models.Diagnostic{
		Time:     now,
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Data:     data,
	})
}
