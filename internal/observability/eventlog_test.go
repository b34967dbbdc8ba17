package observability

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

func newTestLog(t *testing.T) (EventLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, path
}

func TestEventLog_WriteAndRead(t *testing.T) {
	log, _ := newTestLog(t)
	now := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

	events := []Event{
		{Time: now, Level: LevelInfo, Type: "activity.started", Message: "started Design", Data: map[string]any{"task": 2}},
		{Time: now.Add(time.Minute), Level: LevelWarn, Type: "normalise.overnight", Message: "split activity 4"},
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	got, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != "activity.started" || got[0].Message != "started Design" {
		t.Errorf("event 0 = %+v", got[0])
	}
	if task, _ := got[0].Data["task"].(float64); task != 2 {
		t.Errorf("event 0 data = %v", got[0].Data)
	}
	if got[1].Level != LevelWarn {
		t.Errorf("event 1 level = %s", got[1].Level)
	}
}

func TestEventLog_Filter(t *testing.T) {
	log, _ := newTestLog(t)
	base := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	for i, typ := range []string{"activity.started", "normalise.joined", "normalise.order", "activity.paused"} {
		if err := log.Write(Event{Time: base.Add(time.Duration(i) * time.Hour), Level: LevelInfo, Type: typ}); err != nil {
			t.Fatal(err)
		}
	}

	since := base.Add(90 * time.Minute)
	until := base.Add(150 * time.Minute)
	tests := []struct {
		name   string
		filter EventFilter
		want   int
	}{
		{"all", EventFilter{}, 4},
		{"type", EventFilter{Type: "activity.paused"}, 1},
		{"prefix", EventFilter{Prefix: "normalise."}, 2},
		{"since", EventFilter{Since: &since}, 2},
		{"window", EventFilter{Since: &since, Until: &until}, 1},
		{"level", EventFilter{Level: LevelError}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := log.Read(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEventLog_SkipsMalformedLines(t *testing.T) {
	log, path := newTestLog(t)
	if err := log.Write(Event{Type: "activity.started"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n\n")
	_ = f.Close()
	if err := log.Write(Event{Type: "activity.paused"}); err != nil {
		t.Fatal(err)
	}

	got, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Time.IsZero() {
		t.Error("zero time not defaulted on write")
	}
}

func TestEventLog_ConcurrentWrites(t *testing.T) {
	log, _ := newTestLog(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Write(Event{Level: LevelInfo, Type: "reminder.due"})
		}()
	}
	wg.Wait()

	got, err := log.Read(EventFilter{Type: "reminder.due"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 events, got %d", len(got))
	}
}

func TestDiagnosticLogger_Report(t *testing.T) {
	log, _ := newTestLog(t)
	dl := &DiagnosticLogger{Log: log}
	at := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

	dl.Report(models.Diagnostic{Time: at, Severity: models.SeverityWarning, Code: "load.unknown_task", Message: "dropped activity 3"})
	dl.Report(models.Diagnostic{Time: at, Severity: models.SeverityError, Code: "persist.failed", Message: "disk full"})
	dl.Report(models.Diagnostic{Time: at, Severity: models.SeverityInfo, Code: "activity.started"})

	got, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{LevelWarn, LevelError, LevelInfo}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, lvl := range want {
		if got[i].Level != lvl {
			t.Errorf("event %d level = %s, want %s", i, got[i].Level, lvl)
		}
	}
	if got[0].Type != "load.unknown_task" || got[0].Message != "dropped activity 3" {
		t.Errorf("event 0 = %+v", got[0])
	}
}

func TestDiagnosticLogger_OnError(t *testing.T) {
	log, _ := newTestLog(t)
	_ = log.Close()

	var errs []error
	dl := &DiagnosticLogger{Log: log, OnError: func(err error) { errs = append(errs, err) }}
	dl.Report(models.Diagnostic{Code: "activity.started"})
	if len(errs) != 1 {
		t.Fatalf("OnError called %d times, want 1", len(errs))
	}
}
