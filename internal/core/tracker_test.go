package core

import (
	"errors"
	"testing"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

type memTaskArchive struct {
	file  *models.TaskFile
	saves int
	err   error
}

func (m *memTaskArchive) Load() (*models.TaskFile, error) { return m.file, nil }

func (m *memTaskArchive) Save(file models.TaskFile) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.file = &file
	return nil
}

type memSessionArchive struct {
	weeks map[string]models.SessionRecord
}

func newMemSessionArchive() *memSessionArchive {
	return &memSessionArchive{weeks: make(map[string]models.SessionRecord)}
}

func (m *memSessionArchive) Load(weekStart time.Time) (*models.SessionRecord, error) {
	rec, ok := m.weeks[models.WeekKey(weekStart)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memSessionArchive) Save(weekStart time.Time, rec models.SessionRecord) error {
	m.weeks[models.WeekKey(weekStart)] = rec
	return nil
}

func newTestTracker(t *testing.T, now time.Time) (*Tracker, *testClock, *memTaskArchive, *memSessionArchive) {
	t.Helper()
	clock := &testClock{now: now}
	tasks := NewTaskManager(clock, nil, 10)
	taskArchive := &memTaskArchive{}
	sessions := newMemSessionArchive()
	tr := NewTracker(testConfig(), clock, nil, tasks, taskArchive, sessions)
	if err := tr.LoadTasks(); err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if _, err := tr.Open(now); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tr, clock, taskArchive, sessions
}

func TestTracker_PersistsOnLifecycle(t *testing.T) {
	tr, clock, taskArchive, sessions := newTestTracker(t, at(0, 9, 0))
	task, err := tr.Tasks().CreateTask("Design", 0)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if taskArchive.saves == 0 {
		t.Error("task creation not persisted")
	}

	if _, err := tr.Session().StartTask(task.ID); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	clock.set(at(0, 10, 30))
	if _, err := tr.Session().Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	rec, ok := sessions.weeks["2026-W42"]
	if !ok || len(rec.Activities) != 1 {
		t.Fatalf("saved session = %+v", rec)
	}
	if rec.PreviousTask != task.ID {
		t.Errorf("PreviousTask = %d, want %d", rec.PreviousTask, task.ID)
	}

	reopened := NewTracker(testConfig(), clock, nil, NewTaskManager(clock, nil, 10), taskArchive, sessions)
	if err := reopened.LoadTasks(); err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if _, err := reopened.Open(clock.Now()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	totals := reopened.Totals()
	if len(totals) != 1 || totals[0].Booked != 90*time.Minute {
		t.Errorf("Totals = %+v, want Design 1h30m", totals)
	}
}

func TestTracker_TotalsRollUp(t *testing.T) {
	tr, _, _, _ := newTestTracker(t, at(1, 12, 0))
	project, _ := tr.Tasks().CreateTask("Project", 0)
	bn := "BN-1"
	_ = tr.Tasks().Update(project.ID, TaskUpdate{BookingNumber: &bn})
	child, _ := tr.Tasks().CreateTask("Build", project.ID)
	s := tr.Session()
	start := s.NewEvent(at(0, 9, 0), "")
	end := s.NewEvent(at(0, 12, 0), "")
	if _, err := s.NewActivity(child.ID, start.ID, end.ID); err != nil {
		t.Fatalf("NewActivity: %v", err)
	}

	totals := tr.Totals()
	if len(totals) != 2 {
		t.Fatalf("Totals = %+v, want project and child", totals)
	}
	if totals[0].TaskID != project.ID || totals[0].Booked != 3*time.Hour || totals[0].Own != 0 {
		t.Errorf("project total = %+v", totals[0])
	}
	if totals[1].BookingNumber != "BN-1" || !totals[1].Billable {
		t.Errorf("child total = %+v, want inherited booking number", totals[1])
	}
	days := tr.DailyTotals()
	if days[0] != 3*time.Hour {
		t.Errorf("Monday = %s, want 3h", days[0])
	}
}

func TestTracker_RolloverContinuesRunningTask(t *testing.T) {
	tr, clock, _, sessions := newTestTracker(t, at(6, 20, 0))
	task, _ := tr.Tasks().CreateTask("Release", 0)
	if _, err := tr.Session().StartTask(task.ID); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	clock.set(at(7, 0, 30))
	opened, err := tr.Rollover()
	if err != nil {
		t.Fatalf("Rollover: %v", err)
	}
	if !opened {
		t.Fatal("Rollover did not open the new week")
	}
	if _, ok := sessions.weeks["2026-W42"]; !ok {
		t.Error("old week not saved")
	}
	cur, ok := tr.Session().Current()
	if !ok || cur.Task != task.ID || !tr.Session().StartTime(cur).Equal(at(7, 0, 0)) {
		t.Errorf("current after rollover = %+v", cur)
	}
}

func TestTracker_TickReturnsReminders(t *testing.T) {
	tr, _, _, _ := newTestTracker(t, at(0, 9, 58))
	task, _ := tr.Tasks().CreateTask("Standup", 0)
	s := tr.Session()
	ev := s.NewEvent(at(0, 10, 0), "")
	if err := s.SetAction(ev.ID, models.ActionStart, task.ID); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if err := s.SetRemind(ev.ID, true); err != nil {
		t.Fatalf("SetRemind: %v", err)
	}

	due, err := tr.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(due) != 1 || due[0].Task != task.ID || due[0].Label != "Standup" {
		t.Errorf("due = %+v", due)
	}
}

func TestTracker_PersistFailureIsReturned(t *testing.T) {
	tr, _, taskArchive, _ := newTestTracker(t, at(0, 9, 0))
	taskArchive.err = errors.New("read-only")

	if err := tr.Persist(); err == nil {
		t.Error("expected persist error")
	}
}
