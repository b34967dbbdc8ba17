package core

import (
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

const importedTaskName = "Imported event"

// TaskDirectory is the part of the task manager calendar import needs to
// resolve or create tasks.
type TaskDirectory interface {
	TaskLedger
	CreateTask(name string, parent int) (*models.Task, error)
	Update(id int, upd TaskUpdate) error
	FindByCorrelation(externalID string) (*models.Task, bool)
	FindByName(name string) (*models.Task, bool)
}

// TaskMatcher maps a calendar entry's title to an existing task.
type TaskMatcher interface {
	Match(hint string) (int, bool)
}

// TaskMatcherFunc adapts a function to TaskMatcher.
type TaskMatcherFunc func(hint string) (int, bool)

// Match calls f.
func (f TaskMatcherFunc) Match(hint string) (int, bool) { return f(hint) }

// NameMatcher matches titles against task names, ignoring case.
type NameMatcher struct {
	Tasks TaskDirectory
}

// Match returns the task whose name equals hint.
func (m NameMatcher) Match(hint string) (int, bool) {
	t, ok := m.Tasks.FindByName(hint)
	if !ok {
		return 0, false
	}
	return t.ID, true
}

// ImportResult counts what ImportCandidates did.
type ImportResult struct {
	Created    int
	Linked     int
	Skipped    int
	NewTasks   int
	Activities []int
}

// ImportCandidates turns calendar entries into activities. Entries outside
// the session week, free entries and entries already imported are skipped.
// An entry that matches an existing activity of the same task and start is
// linked to it instead of duplicated. Future entries remind at their start.
func (s *Session) ImportCandidates(cands []models.CalendarCandidate, tasks TaskDirectory, matcher TaskMatcher) (ImportResult, error) {
	if matcher == nil {
		matcher = NameMatcher{Tasks: tasks}
	}
	sorted := append([]models.CalendarCandidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	loc := s.cfg.Loc()
	now := s.clock.Now()
	var res ImportResult
	for _, c := range sorted {
		data := map[string]any{"external_id": c.ExternalID, "title": c.TaskHint}
		skip := func(format string, args ...any) {
			res.Skipped++
			s.warn(models.SeverityInfo, CodeImportSkipped, data, format, args...)
		}

		start, end := c.Start.In(loc), c.End.In(loc)
		if c.AllDay {
			start = midnight(start, loc).Add(s.cfg.DayStart)
			end = start.Add(s.cfg.WorkingDay())
		}
		switch {
		case !c.Busy:
			skip("skipping %q: not busy", c.TaskHint)
			continue
		case start.Before(s.weekStart) || !start.Before(s.weekEnd):
			skip("skipping %q: outside the week of %s", c.TaskHint, s.weekStart.Format(time.DateOnly))
			continue
		case !end.After(start):
			skip("skipping %q: ends before it starts", c.TaskHint)
			continue
		case c.ExternalID != "" && s.importedAs(c.ExternalID) != nil:
			skip("skipping %q: already imported", c.TaskHint)
			continue
		}

		task, created, err := s.resolveTask(c, tasks, matcher)
		if err != nil {
			return res, err
		}
		if created {
			res.NewTasks++
		}

		if a := s.activityAt(task, start); a != nil {
			if a.OutlookID == "" {
				a.OutlookID = c.ExternalID
			}
			res.Linked++
			continue
		}

		startEv := s.eventAt(start)
		endEv := s.eventAt(end, startEv.ID)
		a := s.addActivity(task, startEv.ID, endEv.ID)
		a.OutlookID = c.ExternalID
		s.rebook(a)
		if start.After(now) {
			startEv.Remind = true
			if startEv.Label == "" {
				startEv.Label = c.TaskHint
			}
		}
		res.Created++
		res.Activities = append(res.Activities, a.ID)
		s.warn(models.SeverityInfo, CodeImported, map[string]any{"activity": a.ID, "task": task, "external_id": c.ExternalID},
			"imported %q at %s", c.TaskHint, start.Format(time.DateTime))
	}
	if res.Created+res.Linked > 0 {
		return res, s.persist()
	}
	return res, nil
}

func (s *Session) importedAs(externalID string) *Activity {
	for _, a := range s.activities {
		if a.OutlookID == externalID {
			return a
		}
	}
	return nil
}

func (s *Session) activityAt(task int, start time.Time) *Activity {
	for _, a := range s.activities {
		if a.Task == task && s.StartTime(a).Equal(start) {
			return a
		}
	}
	return nil
}

// resolveTask finds the task an entry books to: by correlation id, then by
// the matcher, and otherwise a new root task named after the entry.
func (s *Session) resolveTask(c models.CalendarCandidate, tasks TaskDirectory, matcher TaskMatcher) (int, bool, error) {
	if t, ok := tasks.FindByCorrelation(c.ExternalID); ok {
		return t.ID, false, nil
	}
	if t, ok := tasks.FindByCorrelation(c.RecurringID); ok {
		return t.ID, false, nil
	}
	name := strings.TrimSpace(c.TaskHint)
	if name == "" {
		name = importedTaskName
	}
	if id, ok := matcher.Match(name); ok {
		return id, false, nil
	}
	t, err := tasks.CreateTask(name, 0)
	if err != nil {
		return 0, false, err
	}
	if c.RecurringID != "" {
		if err := tasks.Update(t.ID, TaskUpdate{Recurring: []string{c.RecurringID}}); err != nil {
			return 0, false, err
		}
	}
	return t.ID, true, nil
}
