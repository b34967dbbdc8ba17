package core

import (
	"sort"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// CheckUpcomingEvents runs the periodic scan. It carries the current
// activity over midnight, fires due start actions, pushes back delayed
// events still in the past and returns the events whose reminder falls
// within the reminder window, ordered by time.
func (s *Session) CheckUpcomingEvents() []*Event {
	durable := false
	if !s.cfg.AllowOvernight && s.carryOverMidnight() {
		durable = true
	}
	if s.fireStartActions() {
		durable = true
	}
	if s.applyDelays() {
		durable = true
	}
	due := s.dueReminders()
	if durable {
		_ = s.persist()
	}
	return due
}

// carryOverMidnight closes the current activity at the end of each day it
// has outlived and continues it from midnight on the next.
func (s *Session) carryOverMidnight() bool {
	loc := s.cfg.Loc()
	now := s.clock.Now()
	changed := false
	for {
		cur, ok := s.Current()
		if !ok {
			return changed
		}
		start := s.StartTime(cur)
		next := nextDay(start, loc)
		if now.Before(next) {
			return changed
		}
		s.endAt(cur, s.eventAt(endOfDay(start, loc), cur.Start))
		cont := s.addActivity(cur.Task, s.eventAt(next).ID, NowID)
		cont.Allocation = cur.Allocation
		s.warn(models.SeverityInfo, CodeActivityContinued, map[string]any{"activity": cur.ID, "continued": cont.ID},
			"activity %d carried over midnight as %d", cur.ID, cont.ID)
		changed = true
	}
}

// fireStartActions starts the bound task of every start action that is due.
func (s *Session) fireStartActions() bool {
	now := s.clock.Now()
	fired := false
	for _, ev := range s.Events() {
		if ev.Action != models.ActionStart || ev.Time.After(now) {
			continue
		}
		task := ev.ActionTask
		ev.Action = models.ActionNone
		ev.ActionTask = 0
		fired = true
		if _, err := s.tasks.GetTask(task); err != nil {
			s.warn(models.SeverityWarning, CodeUnknownTask, map[string]any{"event": ev.ID, "task": task},
				"start action on event %d names unknown task %d", ev.ID, task)
			continue
		}
		if cur, ok := s.Current(); ok && cur.Task == task {
			continue
		}
		if cur, ok := s.Current(); ok {
			if ev.Time.Before(s.StartTime(cur)) {
				s.closeCurrent(now)
			} else {
				s.endAt(cur, ev)
			}
		}
		a := s.addActivity(task, ev.ID, NowID)
		s.previousTask = 0
		s.tasks.MarkStarted(task)
		s.warn(models.SeverityInfo, CodeActionStarted, map[string]any{"event": ev.ID, "activity": a.ID, "task": task},
			"started task %d from event %d", task, ev.ID)
	}
	return fired
}

// applyDelays pushes each overdue delay event, and every event reachable
// from it through activities at or after its time, forward to now.
func (s *Session) applyDelays() bool {
	now := s.clock.Now()
	changed := false
	for _, ev := range s.Events() {
		if ev.Action != models.ActionDelay || !ev.Time.Before(now) {
			continue
		}
		origin := ev.Time
		delta := now.Sub(origin)
		moved := s.reachableFrom(ev, origin)
		touched := make(map[int]*Activity)
		for _, m := range moved {
			m.Time = m.Time.Add(delta)
			for _, id := range append(m.Prior.IDs(), m.Subsequent.IDs()...) {
				touched[id] = s.activities[id]
			}
		}
		for _, a := range touched {
			s.orderEnds(a, true)
			s.rebook(a)
		}
		s.warn(models.SeverityInfo, CodeEventDelayed, map[string]any{"event": ev.ID, "delay": delta.String(), "moved": len(moved)},
			"delayed event %d and %d linked events by %s", ev.ID, len(moved)-1, delta)
		changed = true
	}
	return changed
}

// reachableFrom walks the activity edges from ev, collecting events that are
// not earlier than origin. Each event is visited once.
func (s *Session) reachableFrom(ev *Event, origin time.Time) []*Event {
	visited := map[int]bool{ev.ID: true}
	queue := []*Event{ev}
	var out []*Event
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		var others []int
		for _, id := range cur.Prior {
			others = append(others, s.activities[id].Start)
		}
		for _, id := range cur.Subsequent {
			others = append(others, s.activities[id].End)
		}
		for _, id := range others {
			if id == NowID || visited[id] {
				continue
			}
			visited[id] = true
			if o := s.events[id]; !o.Time.Before(origin) {
				queue = append(queue, o)
			}
		}
	}
	return out
}

// dueReminders lists the reminder events due within the reminder window.
// The start of the current activity never reminds.
func (s *Session) dueReminders() []*Event {
	horizon := s.clock.Now().Add(s.cfg.ReminderWindow)
	var skip int
	if cur, ok := s.Current(); ok {
		skip = cur.Start
	}
	var due []*Event
	for _, ev := range s.events {
		if !ev.Remind || ev.ID == skip || ev.Time.After(horizon) {
			continue
		}
		due = append(due, ev)
		if !s.notified[ev.ID] {
			s.notified[ev.ID] = true
			s.warn(models.SeverityInfo, CodeReminderDue, map[string]any{"event": ev.ID, "label": ev.Label},
				"reminder due at %s: %s", ev.Time.Format(time.DateTime), ev.Label)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].Time.Equal(due[j].Time) {
			return due[i].Time.Before(due[j].Time)
		}
		return due[i].ID < due[j].ID
	})
	return due
}

// Acknowledge clears an event's reminder so it is not reported again.
func (s *Session) Acknowledge(event int) error {
	return s.SetRemind(event, false)
}
