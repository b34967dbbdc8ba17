package core

import (
	"testing"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

func TestNormalise_OvernightSplitFallsBackToMidnight(t *testing.T) {
	f := newFixture(t, at(2, 12, 0))
	task := f.task(t, "Deploy")
	f.activity(t, task, at(0, 22, 0), at(1, 2, 0))

	rep := f.session.Normalise()

	if rep.Overnight != 1 {
		t.Fatalf("Overnight = %d, want 1", rep.Overnight)
	}
	acts := f.session.Activities()
	if len(acts) != 2 {
		t.Fatalf("activities = %d, want 2", len(acts))
	}
	first, second := acts[0], acts[1]
	if !f.session.StartTime(first).Equal(at(0, 22, 0)) || !f.session.EndTime(first).Equal(at(0, 23, 59).Add(59*time.Second)) {
		t.Errorf("first = %s..%s", f.session.StartTime(first), f.session.EndTime(first))
	}
	if !f.session.StartTime(second).Equal(at(1, 0, 0)) || !f.session.EndTime(second).Equal(at(1, 2, 0)) {
		t.Errorf("second = %s..%s", f.session.StartTime(second), f.session.EndTime(second))
	}
	if got := f.allocated(t, task); got != 4*time.Hour-time.Second {
		t.Errorf("AllocatedTime = %s, want 3h59m59s", got)
	}
	f.checkInvariants(t)
}

func TestNormalise_OvernightSplitUsesWorkingDay(t *testing.T) {
	f := newFixture(t, at(2, 12, 0))
	task := f.task(t, "Migration")
	f.activity(t, task, at(0, 8, 0), at(1, 10, 0))

	f.session.Normalise()

	acts := f.session.Activities()
	if len(acts) != 2 {
		t.Fatalf("activities = %d, want 2", len(acts))
	}
	if !f.session.EndTime(acts[0]).Equal(at(0, 17, 0)) {
		t.Errorf("first end = %s, want 17:00", f.session.EndTime(acts[0]))
	}
	if !f.session.StartTime(acts[1]).Equal(at(1, 9, 0)) {
		t.Errorf("second start = %s, want 09:00 next day", f.session.StartTime(acts[1]))
	}
}

func TestNormalise_MultiDaySpan(t *testing.T) {
	f := newFixture(t, at(4, 12, 0))
	task := f.task(t, "Offsite")
	f.activity(t, task, at(0, 20, 0), at(2, 1, 0))

	rep := f.session.Normalise()

	if rep.Overnight != 2 {
		t.Errorf("Overnight = %d, want 2", rep.Overnight)
	}
	loc := time.UTC
	for _, a := range f.session.Activities() {
		if crossesMidnight(f.session.StartTime(a), f.session.EndTime(a), loc) {
			t.Errorf("activity %d still crosses midnight", a.ID)
		}
	}
	f.checkInvariants(t)
}

func TestNormalise_AllowOvernightKeepsSpan(t *testing.T) {
	cfg := testConfig()
	cfg.AllowOvernight = true
	f := newFixtureWithConfig(t, at(2, 12, 0), cfg)
	task := f.task(t, "Deploy")
	f.activity(t, task, at(0, 22, 0), at(1, 2, 0))

	if rep := f.session.Normalise(); rep.Overnight != 0 {
		t.Errorf("Overnight = %d, want 0", rep.Overnight)
	}
}

func TestNormalise_EndingAtMidnightIsNotOvernight(t *testing.T) {
	f := newFixture(t, at(2, 12, 0))
	task := f.task(t, "Late")
	f.activity(t, task, at(0, 22, 0), at(1, 0, 0))

	if rep := f.session.Normalise(); rep.Overnight != 0 {
		t.Errorf("Overnight = %d, want 0", rep.Overnight)
	}
}

func TestNormalise_JoinsSameTask(t *testing.T) {
	f := newFixture(t, at(1, 12, 0))
	task := f.task(t, "Design")
	first := f.activity(t, task, at(0, 9, 0), at(0, 10, 0))
	if _, err := f.session.NewActivity(task, first.End, f.session.NewEvent(at(0, 11, 0), "").ID); err != nil {
		t.Fatalf("NewActivity: %v", err)
	}

	rep := f.session.Normalise()

	if rep.Joined != 1 {
		t.Fatalf("Joined = %d, want 1", rep.Joined)
	}
	acts := f.session.Activities()
	if len(acts) != 1 {
		t.Fatalf("activities = %d, want 1", len(acts))
	}
	if f.session.Duration(acts[0]) != 2*time.Hour || f.allocated(t, task) != 2*time.Hour {
		t.Errorf("joined duration = %s, allocated = %s, want 2h", f.session.Duration(acts[0]), f.allocated(t, task))
	}
	f.checkInvariants(t)
}

func TestNormalise_JoinDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.JoinActivities = false
	f := newFixtureWithConfig(t, at(1, 12, 0), cfg)
	task := f.task(t, "Design")
	first := f.activity(t, task, at(0, 9, 0), at(0, 10, 0))
	_, _ = f.session.NewActivity(task, first.End, f.session.NewEvent(at(0, 11, 0), "").ID)

	if rep := f.session.Normalise(); rep.Joined != 0 {
		t.Errorf("Joined = %d, want 0", rep.Joined)
	}
}

func TestNormalise_JoinIntoCurrent(t *testing.T) {
	f := newFixture(t, at(0, 9, 0))
	task := f.task(t, "Design")
	other := f.task(t, "Other")
	first, _ := f.session.StartTask(task)
	f.clock.set(at(0, 10, 0))
	second, _ := f.session.StartTask(other)
	if err := f.session.Rebind(second.ID, task); err != nil {
		t.Fatalf("Rebind: %v", err)
	}

	f.session.Normalise()

	cur, ok := f.session.Current()
	if !ok || cur.ID != first.ID {
		t.Fatalf("Current = %v, want joined activity %d", cur, first.ID)
	}
	f.checkInvariants(t)
}

func TestLoadSession_UnfinishedEndsAtNextEvent(t *testing.T) {
	clock := &testClock{now: at(1, 12, 0)}
	tasks := NewTaskManager(clock, nil, 10)
	a, _ := tasks.CreateTask("A", 0)
	b, _ := tasks.CreateTask("B", 0)
	rec := models.SessionRecord{
		Activities: []models.ActivityRecord{
			{ID: 1, Task: a.ID, Start: 1},
			{ID: 2, Task: b.ID, Start: 2, End: 3},
		},
		Events: []models.EventRecord{
			{ID: 1, Time: at(0, 9, 0), Subsequent: []int{1}},
			{ID: 2, Time: at(0, 10, 0), Subsequent: []int{2}},
			{ID: 3, Time: at(0, 11, 0), Prior: []int{2}},
		},
	}
	diags := &DiagnosticBuffer{}

	s, rep := LoadSession(rec, testConfig(), clock, tasks, diags, weekOf)

	if rep.Unfinished != 1 {
		t.Fatalf("Unfinished = %d, want 1", rep.Unfinished)
	}
	act, _ := s.Activity(1)
	if !s.EndTime(act).Equal(at(0, 10, 0)) {
		t.Errorf("end = %s, want 10:00", s.EndTime(act))
	}
	if got, _ := tasks.GetTask(a.ID); got.AllocatedTime != time.Hour {
		t.Errorf("repair booked %s, want 1h", got.AllocatedTime)
	}
	if diags.Count(models.SeverityWarning) == 0 {
		t.Error("repair not reported")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSession_UnfinishedTodayEndsAtDayEnd(t *testing.T) {
	clock := &testClock{now: at(0, 12, 0)}
	tasks := NewTaskManager(clock, nil, 10)
	a, _ := tasks.CreateTask("A", 0)
	b, _ := tasks.CreateTask("B", 0)
	rec := models.SessionRecord{
		CurrentActivity: 2,
		Activities: []models.ActivityRecord{
			{ID: 1, Task: a.ID, Start: 1},
			{ID: 2, Task: b.ID, Start: 2},
		},
		Events: []models.EventRecord{
			{ID: 1, Time: at(0, 9, 0)},
			{ID: 2, Time: at(0, 11, 0)},
		},
	}

	s, _ := LoadSession(rec, testConfig(), clock, tasks, nil, weekOf)

	act, _ := s.Activity(1)
	if !s.EndTime(act).Equal(at(0, 17, 0)) {
		t.Errorf("end = %s, want 17:00", s.EndTime(act))
	}
	if cur, ok := s.Current(); !ok || cur.ID != 2 {
		t.Errorf("Current = %v, want 2", cur)
	}
}

func TestLoadSession_AllowUnfinishedAdoptsLatest(t *testing.T) {
	cfg := testConfig()
	cfg.AllowUnfinished = true
	clock := &testClock{now: at(0, 12, 0)}
	tasks := NewTaskManager(clock, nil, 10)
	a, _ := tasks.CreateTask("A", 0)
	rec := models.SessionRecord{
		Activities: []models.ActivityRecord{{ID: 4, Task: a.ID, Start: 7}},
		Events:     []models.EventRecord{{ID: 7, Time: at(0, 9, 0)}},
	}

	s, rep := LoadSession(rec, cfg, clock, tasks, nil, weekOf)

	if rep.Unfinished != 0 {
		t.Errorf("Unfinished = %d, want 0", rep.Unfinished)
	}
	if cur, ok := s.Current(); !ok || cur.ID != 4 {
		t.Errorf("Current = %v, want 4", cur)
	}
}

func TestLoadSession_DropsUnresolvable(t *testing.T) {
	clock := &testClock{now: at(1, 12, 0)}
	tasks := NewTaskManager(clock, nil, 10)
	a, _ := tasks.CreateTask("A", 0)
	rec := models.SessionRecord{
		Activities: []models.ActivityRecord{
			{ID: 1, Task: 42, Start: 1, End: 2},
			{ID: 2, Task: a.ID, Start: 9, End: 2},
			{ID: 3, Task: a.ID, Start: 3, End: 2},
			{ID: 3, Task: a.ID, Start: 1, End: 2},
		},
		Events: []models.EventRecord{
			{ID: 1, Time: at(0, 9, 0)},
			{ID: 2, Time: at(0, 10, 0), Prior: []int{3}},
			{ID: 3, Time: at(0, 9, 30), Subsequent: []int{3}},
		},
	}
	diags := &DiagnosticBuffer{}

	s, _ := LoadSession(rec, testConfig(), clock, tasks, diags, weekOf)

	if got := len(s.Activities()); got != 1 {
		t.Fatalf("activities = %d, want 1", got)
	}
	codes := map[string]bool{}
	for _, d := range diags.Items() {
		codes[d.Code] = true
	}
	for _, want := range []string{CodeUnknownTask, CodeDanglingActivity, CodeDuplicateID} {
		if !codes[want] {
			t.Errorf("missing diagnostic %s", want)
		}
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSession_RecoversStartFromMembership(t *testing.T) {
	clock := &testClock{now: at(1, 12, 0)}
	tasks := NewTaskManager(clock, nil, 10)
	a, _ := tasks.CreateTask("A", 0)
	rec := models.SessionRecord{
		Activities: []models.ActivityRecord{{ID: 1, Task: a.ID, Start: 5, End: 2}},
		Events: []models.EventRecord{
			{ID: 1, Time: at(0, 9, 0), Subsequent: []int{1}},
			{ID: 2, Time: at(0, 10, 0), Prior: []int{1}},
		},
	}

	s, _ := LoadSession(rec, testConfig(), clock, tasks, nil, weekOf)

	act, ok := s.Activity(1)
	if !ok || act.Start != 1 {
		t.Fatalf("activity = %+v, want start recovered to event 1", act)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	f := newFixture(t, at(0, 9, 0))
	task := f.task(t, "A")
	f.activity(t, task, at(0, 7, 0), at(0, 8, 0))
	f.session.NewEvent(at(0, 15, 0), "Review")
	if _, err := f.session.StartTask(task); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	rec := f.session.Snapshot()

	s, rep := LoadSession(rec, testConfig(), f.clock, f.tasks, nil, weekOf)

	if rep.Changed() {
		t.Errorf("reloading a clean snapshot repaired %+v", rep)
	}
	got := s.Snapshot()
	if len(got.Events) != len(rec.Events) || len(got.Activities) != len(rec.Activities) || got.CurrentActivity != rec.CurrentActivity {
		t.Errorf("snapshot changed across reload: %+v vs %+v", got, rec)
	}
	if f.allocated(t, task) != time.Hour {
		t.Errorf("reload double-booked: %s", f.allocated(t, task))
	}
}
