package core

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// TaskArchive persists the task tree. Load returns nil when nothing has been
// saved yet.
type TaskArchive interface {
	Load() (*models.TaskFile, error)
	Save(file models.TaskFile) error
}

// SessionArchive persists one session per week, keyed by the week's Monday.
// Load returns nil when the week has no record.
type SessionArchive interface {
	Load(weekStart time.Time) (*models.SessionRecord, error)
	Save(weekStart time.Time, rec models.SessionRecord) error
}

// Tracker ties the task tree and the open week's session to their archives.
type Tracker struct {
	cfg         models.EngineConfig
	clock       Clock
	reporter    Reporter
	tasks       TaskManager
	taskArchive TaskArchive
	sessions    SessionArchive
	session     *Session
	onUpdate    func()
}

// NewTracker creates a tracker. Call LoadTasks and Open before use.
func NewTracker(cfg models.EngineConfig, clock Clock, reporter Reporter, tasks TaskManager, taskArchive TaskArchive, sessions SessionArchive) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	t := &Tracker{
		cfg:         cfg,
		clock:       clock,
		reporter:    reporter,
		tasks:       tasks,
		taskArchive: taskArchive,
		sessions:    sessions,
	}
	tasks.OnChange(func() {
		_ = t.persistTasks()
	})
	return t
}

// OnUpdate registers a hook called after every session change.
func (t *Tracker) OnUpdate(fn func()) {
	t.onUpdate = fn
	if t.session != nil {
		t.session.OnUpdate(fn)
	}
}

// Tasks returns the task tree.
func (t *Tracker) Tasks() TaskManager { return t.tasks }

// Session returns the open session, or nil before Open.
func (t *Tracker) Session() *Session { return t.session }

// Now reads the tracker's clock.
func (t *Tracker) Now() time.Time { return t.clock.Now() }

// Config returns the engine configuration.
func (t *Tracker) Config() models.EngineConfig { return t.cfg }

// LoadTasks restores the task tree from its archive.
func (t *Tracker) LoadTasks() error {
	file, err := t.taskArchive.Load()
	if err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}
	if file != nil {
		t.tasks.Restore(*file)
	}
	return nil
}

// Open loads the session of the week containing ref, normalises it and
// saves any repairs.
func (t *Tracker) Open(ref time.Time) (NormaliseReport, error) {
	weekStart := WeekStart(ref, t.cfg.Loc())
	rec, err := t.sessions.Load(weekStart)
	if err != nil {
		return NormaliseReport{}, fmt.Errorf("loading session %s: %w", models.WeekKey(weekStart), err)
	}
	var s *Session
	var rep NormaliseReport
	if rec == nil {
		s = NewSession(t.cfg, t.clock, t.tasks, t.reporter, weekStart)
	} else {
		s, rep = LoadSession(*rec, t.cfg, t.clock, t.tasks, t.reporter, weekStart)
	}
	s.OnPersist(t.Persist)
	s.OnUpdate(t.onUpdate)
	t.session = s
	if rep.Changed() {
		if err := t.Persist(); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Rollover opens the current week when the clock has moved past the open
// session's week. A running activity is closed at the end of the old week
// and continued from the start of the new one. It reports whether a new
// week was opened.
func (t *Tracker) Rollover() (bool, error) {
	now := t.clock.Now()
	if t.session != nil && now.Before(t.session.WeekEnd()) {
		return false, nil
	}
	running := 0
	if t.session != nil {
		if cur, ok := t.session.Current(); ok {
			running = cur.Task
			t.session.closeCurrent(t.session.WeekEnd().Add(-time.Second))
		}
		if err := t.Persist(); err != nil {
			return false, err
		}
	}
	if _, err := t.Open(now); err != nil {
		return false, err
	}
	if running != 0 {
		s := t.session
		if _, err := s.startAt(running, s.eventAt(s.WeekStart())); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Persist saves the task tree and the open session.
func (t *Tracker) Persist() error {
	if err := t.persistTasks(); err != nil {
		return err
	}
	if t.session == nil {
		return nil
	}
	if err := t.sessions.Save(t.session.WeekStart(), t.session.Snapshot()); err != nil {
		report(t.reporter, t.clock.Now(), models.SeverityError, CodePersistFailed,
			map[string]any{"week": models.WeekKey(t.session.WeekStart())}, "saving session: %v", err)
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (t *Tracker) persistTasks() error {
	if err := t.taskArchive.Save(t.tasks.Snapshot()); err != nil {
		report(t.reporter, t.clock.Now(), models.SeverityError, CodePersistFailed, nil, "saving tasks: %v", err)
		return fmt.Errorf("saving tasks: %w", err)
	}
	return nil
}

// Tick runs the periodic scan and returns the due reminders.
func (t *Tracker) Tick() ([]models.Reminder, error) {
	if _, err := t.Rollover(); err != nil {
		return nil, err
	}
	return t.Reminders(t.session.CheckUpcomingEvents()), nil
}

// Reminders describes reminder events with the task they concern.
func (t *Tracker) Reminders(events []*Event) []models.Reminder {
	out := make([]models.Reminder, 0, len(events))
	for _, ev := range events {
		r := models.Reminder{EventID: ev.ID, Time: ev.Time, Label: ev.Label, Task: ev.ActionTask}
		if r.Task == 0 && len(ev.Subsequent) > 0 {
			if a, ok := t.session.Activity(ev.Subsequent[0]); ok {
				r.Task = a.Task
			}
		}
		if r.Label == "" && r.Task != 0 {
			if task, err := t.tasks.GetTask(r.Task); err == nil {
				r.Label = task.Name
			}
		}
		out = append(out, r)
	}
	return out
}

// Import books calendar entries into the open session.
func (t *Tracker) Import(cands []models.CalendarCandidate, matcher TaskMatcher) (ImportResult, error) {
	return t.session.ImportCandidates(cands, t.tasks, matcher)
}

// Totals returns booked time per task for the open week, leaves and parents
// alike, ordered by task tree position. Tasks with no time this week are
// omitted.
func (t *Tracker) Totals() []models.TaskTotal {
	booked := t.session.BookedByTask()
	rolled := make(map[int]time.Duration)
	for id, d := range booked {
		for cur := id; cur != 0; {
			rolled[cur] += d
			task, err := t.tasks.GetTask(cur)
			if err != nil {
				break
			}
			cur = task.Parent
		}
	}
	var out []models.TaskTotal
	for _, task := range t.tasks.AllTasks() {
		d, ok := rolled[task.ID]
		if !ok || d == 0 {
			continue
		}
		out = append(out, models.TaskTotal{
			TaskID:        task.ID,
			Name:          task.Name,
			BookingNumber: t.tasks.EffectiveBookingNumber(task.ID),
			Billable:      t.tasks.Billable(task.ID),
			Booked:        d,
			Own:           booked[task.ID],
		})
	}
	return out
}

// DailyTotals returns booked time per weekday of the open week, Monday first.
func (t *Tracker) DailyTotals() [7]time.Duration {
	var days [7]time.Duration
	s := t.session
	loc := t.cfg.Loc()
	for _, a := range s.Activities() {
		if idx := dayIndex(s.WeekStart(), s.StartTime(a), loc); idx >= 0 && idx < 7 {
			days[idx] += s.Booked(a)
		}
	}
	return days
}

// RecentTasks returns the recently started tasks, most recent first.
func (t *Tracker) RecentTasks() []*models.Task {
	var out []*models.Task
	for _, id := range t.tasks.Recent() {
		if task, err := t.tasks.GetTask(id); err == nil {
			out = append(out, task)
		}
	}
	return out
}

// dayIndex returns the number of calendar days from weekStart to t.
func dayIndex(weekStart, t time.Time, loc *time.Location) int {
	day := midnight(t, loc)
	ws := midnight(weekStart, loc)
	for i := 0; i < 7; i++ {
		if time.Date(ws.Year(), ws.Month(), ws.Day()+i, 0, 0, 0, 0, loc).Equal(day) {
			return i
		}
	}
	return -1
}
