package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/weektrack/internal/core"
	wtmcp "github.com/valter-silva-au/weektrack/internal/mcp"
	"github.com/valter-silva-au/weektrack/internal/observability"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *failingNotifier) NotifyReminders(context.Context, []models.Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return errors.New("webhook returned 500")
}

func (n *failingNotifier) NotifyAlerts(context.Context, []observability.Alert) error { return nil }

// syncBuffer guards a bytes.Buffer written by the scan goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runScanLoop(t *testing.T, errOut *syncBuffer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scanLoop(ctx, wtmcp.NewServer(Tracker, nil, nil, "test"), 5*time.Millisecond, errOut)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done
}

func TestScanLoop_NotifiesOnce(t *testing.T) {
	clock := setupTracker(t)
	ev := Tracker.Session().NewEvent(clock.now.Add(time.Minute), "Standup")
	if err := Tracker.Session().SetRemind(ev.ID, true); err != nil {
		t.Fatal(err)
	}
	notifier := &recordingNotifier{}
	Notifier = notifier

	var errOut syncBuffer
	runScanLoop(t, &errOut)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.reminders) != 1 || notifier.reminders[0].EventID != ev.ID {
		t.Errorf("notified %+v, want the reminder once", notifier.reminders)
	}
	if errOut.String() != "" {
		t.Errorf("unexpected error output %q", errOut.String())
	}
}

func TestScanLoop_ReportsFailedNotifications(t *testing.T) {
	clock := setupTracker(t)
	ev := Tracker.Session().NewEvent(clock.now.Add(time.Minute), "Standup")
	if err := Tracker.Session().SetRemind(ev.ID, true); err != nil {
		t.Fatal(err)
	}
	notifier := &failingNotifier{}
	Notifier = notifier

	var errOut syncBuffer
	runScanLoop(t, &errOut)

	if !strings.Contains(errOut.String(), "sending reminders: webhook returned 500") {
		t.Errorf("error output = %q", errOut.String())
	}
	notifier.mu.Lock()
	calls := notifier.calls
	notifier.mu.Unlock()
	if calls < 2 {
		t.Errorf("notifier called %d times, want retries after failure", calls)
	}
	found := false
	for _, d := range Diagnostics.Items() {
		if d.Code == core.CodeNotifyFailed && d.Severity == models.SeverityError {
			found = true
		}
	}
	if !found {
		t.Error("failed notification not recorded as a diagnostic")
	}
}
