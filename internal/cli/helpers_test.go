package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/internal/storage"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// tuesday is 13 October 2026, in ISO week 2026-W42.
func tuesday(hour, minute int) time.Time {
	return time.Date(2026, 10, 13, hour, minute, 0, 0, time.UTC)
}

// setupTracker wires a tracker over stores in a temp dir into the package
// vars and restores the previous values when the test ends.
func setupTracker(t *testing.T) *testClock {
	t.Helper()
	origTracker, origDiag, origStore, origBase, origConfig := Tracker, Diagnostics, SessionStore, BasePath, Config
	origLog, origAlerts, origMetrics, origNotifier := EventLog, AlertEngine, MetricsCalc, Notifier
	t.Cleanup(func() {
		Tracker, Diagnostics, SessionStore, BasePath, Config = origTracker, origDiag, origStore, origBase, origConfig
		EventLog, AlertEngine, MetricsCalc, Notifier = origLog, origAlerts, origMetrics, origNotifier
	})

	dir := t.TempDir()
	clock := &testClock{now: tuesday(9, 0)}
	cfg := models.DefaultEngineConfig()
	cfg.Location = time.UTC

	Diagnostics = &core.DiagnosticBuffer{}
	SessionStore = storage.NewSessionStore(dir, time.UTC)
	tracker := core.NewTracker(cfg, clock, Diagnostics,
		core.NewTaskManager(clock, Diagnostics, 10),
		storage.NewTaskStore(dir, time.UTC), SessionStore)
	if err := tracker.LoadTasks(); err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if _, err := tracker.Open(clock.now); err != nil {
		t.Fatalf("Open: %v", err)
	}
	Tracker = tracker
	BasePath = dir
	Config = &models.GlobalConfig{Engine: cfg, RecentLimit: 10}
	EventLog, AlertEngine, MetricsCalc, Notifier = nil, nil, nil, nil
	return clock
}

// run calls the command's RunE with only the given flags set, capturing its
// output. Flags are reset again when the test ends.
func run(t *testing.T, cmd *cobra.Command, flags map[string]string, args ...string) (string, error) {
	t.Helper()
	resetFlags(cmd)
	t.Cleanup(func() { resetFlags(cmd) })
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("setting --%s: %v", name, err)
		}
	}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	defer cmd.SetOut(nil)
	if cmd.RunE != nil {
		err := cmd.RunE(cmd, args)
		return buf.String(), err
	}
	cmd.Run(cmd, args)
	return buf.String(), nil
}

// mustRun is run for commands expected to succeed.
func mustRun(t *testing.T, cmd *cobra.Command, flags map[string]string, args ...string) string {
	t.Helper()
	out, err := run(t, cmd, flags, args...)
	if err != nil {
		t.Fatalf("%s %v: %v", cmd.Name(), args, err)
	}
	return out
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func addTask(t *testing.T, name string, parent int) int {
	t.Helper()
	task, err := Tracker.Tasks().CreateTask(name, parent)
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", name, err)
	}
	return task.ID
}
