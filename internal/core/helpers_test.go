package core

import (
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// weekOf is Monday 12 October 2026, ISO week 42.
var weekOf = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

// at returns hh:mm on the given day of the test week, Monday being day 0.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 10, 12+day, hour, minute, 0, 0, time.UTC)
}

// tb is the subset of testing.TB that *rapid.T also provides.
type tb interface {
	Helper()
	Fatalf(format string, args ...any)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) set(t time.Time) { c.now = t }

func testConfig() models.EngineConfig {
	cfg := models.DefaultEngineConfig()
	cfg.Location = time.UTC
	return cfg
}

type fixture struct {
	session *Session
	tasks   TaskManager
	clock   *testClock
	diags   *DiagnosticBuffer
}

func newFixture(t tb, now time.Time) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, now, testConfig())
}

func newFixtureWithConfig(t tb, now time.Time, cfg models.EngineConfig) *fixture {
	t.Helper()
	clock := &testClock{now: now}
	diags := &DiagnosticBuffer{}
	tasks := NewTaskManager(clock, diags, 10)
	return &fixture{
		session: NewSession(cfg, clock, tasks, diags, weekOf),
		tasks:   tasks,
		clock:   clock,
		diags:   diags,
	}
}

func (f *fixture) task(t tb, name string) int {
	t.Helper()
	task, err := f.tasks.CreateTask(name, 0)
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", name, err)
	}
	return task.ID
}

// activity creates a completed activity between two fresh events.
func (f *fixture) activity(t tb, task int, from, to time.Time) *Activity {
	t.Helper()
	start := f.session.NewEvent(from, "")
	end := f.session.NewEvent(to, "")
	a, err := f.session.NewActivity(task, start.ID, end.ID)
	if err != nil {
		t.Fatalf("NewActivity: %v", err)
	}
	return a
}

func (f *fixture) allocated(t tb, task int) time.Duration {
	t.Helper()
	got, err := f.tasks.GetTask(task)
	if err != nil {
		t.Fatalf("GetTask(%d): %v", task, err)
	}
	return got.AllocatedTime
}

func (f *fixture) checkInvariants(t tb) {
	t.Helper()
	if err := f.session.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

func (f *fixture) hasDiagnostic(code string) bool {
	for _, d := range f.diags.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}
