package core

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

func (s *Session) activity(id int) (*Activity, error) {
	a, ok := s.activities[id]
	if !ok {
		return nil, fmt.Errorf("activity %d: %w", id, ErrActivityNotFound)
	}
	return a, nil
}

func (s *Session) event(id int) (*Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %d: %w", id, ErrEventNotFound)
	}
	return ev, nil
}

func (s *Session) reject(err error, data map[string]any) error {
	s.warn(models.SeverityWarning, CodeInvalidOperation, data, "%v", err)
	return err
}

// NewEvent adds an event at t. Unlabelled events are dropped by the next
// collection unless an activity is bound to them first.
func (s *Session) NewEvent(t time.Time, label string) *Event {
	ev := s.newEvent(t, label)
	s.updated()
	return ev
}

// NewActivity creates an activity on task between two events. An end of
// NowID makes it the current activity; any previous current activity is
// closed at the new activity's start.
func (s *Session) NewActivity(task, start, end int) (*Activity, error) {
	if _, err := s.tasks.GetTask(task); err != nil {
		return nil, fmt.Errorf("creating activity: %w", err)
	}
	startEv, err := s.event(start)
	if err != nil {
		return nil, fmt.Errorf("creating activity: start: %w", err)
	}
	if end != NowID {
		if _, err := s.event(end); err != nil {
			return nil, fmt.Errorf("creating activity: end: %w", err)
		}
		if end == start {
			return nil, s.reject(ErrInvalidInterval, map[string]any{"event": start})
		}
	} else if _, ok := s.Current(); ok {
		s.closeCurrent(startEv.Time)
	}

	a := s.addActivity(task, start, end)
	s.orderEnds(a, false)
	s.rebook(a)
	if a.Ongoing() {
		s.tasks.MarkStarted(task)
	}
	s.updated()
	return a, nil
}

// orderEnds swaps the ends of a completed activity that starts after it
// ends, reporting whether it did.
func (s *Session) orderEnds(a *Activity, announce bool) bool {
	if a.Ongoing() || !s.StartTime(a).After(s.EndTime(a)) {
		return false
	}
	s.swapEnds(a)
	if announce {
		s.warn(models.SeverityWarning, CodeOrderRepaired, map[string]any{"activity": a.ID},
			"activity %d ended before it started; swapped its ends", a.ID)
	}
	return true
}

func (s *Session) swapEnds(a *Activity) {
	s.unbind(a)
	a.Start, a.End = a.End, a.Start
	s.bind(a)
}

// ChangeStart rebinds the activity's start to another event.
func (s *Session) ChangeStart(activity, event int) error {
	a, err := s.activity(activity)
	if err != nil {
		return err
	}
	ev, err := s.event(event)
	if err != nil {
		return err
	}
	if ev.ID == a.Start {
		return nil
	}
	if ev.ID == a.End {
		return s.reject(ErrInvalidInterval, map[string]any{"activity": a.ID, "event": ev.ID})
	}
	old := a.Start
	s.events[old].Subsequent.Remove(a.ID)
	a.Start = ev.ID
	ev.Subsequent.Add(a.ID)
	s.orderEnds(a, false)
	s.rebook(a)
	s.collect(old)
	s.updated()
	return nil
}

// ChangeEnd rebinds the activity's end to another event. NowID turns the
// activity into the current one, closing any other at the live clock.
func (s *Session) ChangeEnd(activity, event int) error {
	a, err := s.activity(activity)
	if err != nil {
		return err
	}
	if event == a.End {
		return nil
	}
	if event == a.Start {
		return s.reject(ErrInvalidInterval, map[string]any{"activity": a.ID, "event": event})
	}
	var ev *Event
	if event != NowID {
		if ev, err = s.event(event); err != nil {
			return err
		}
	}

	old := a.End
	if old != NowID {
		s.events[old].Prior.Remove(a.ID)
	}
	if ev == nil {
		if cur, ok := s.Current(); ok && cur.ID != a.ID {
			s.closeCurrent(s.clock.Now())
		}
		a.End = NowID
		s.current = a.ID
	} else {
		a.End = ev.ID
		ev.Prior.Add(a.ID)
		if s.current == a.ID {
			s.current = 0
		}
		s.orderEnds(a, false)
	}
	s.rebook(a)
	if old != NowID {
		s.collect(old)
	}
	s.updated()
	return nil
}

// Swap exchanges the start and end events of a completed activity that
// ends before it starts. An activity already in order is left alone.
func (s *Session) Swap(activity int) error {
	a, err := s.activity(activity)
	if err != nil {
		return err
	}
	data := map[string]any{"activity": a.ID}
	if a.Ongoing() {
		return s.reject(fmt.Errorf("swapping activity %d: %w", a.ID, ErrOngoing), data)
	}
	if !s.orderEnds(a, false) {
		return s.reject(fmt.Errorf("swapping activity %d: %w", a.ID, ErrInOrder), data)
	}
	s.rebook(a)
	s.updated()
	return nil
}

// Split cuts an activity at event, which must lie within its interval. The
// returned activity covers the first part; the original keeps the rest.
func (s *Session) Split(activity, event int) (*Activity, error) {
	a, err := s.activity(activity)
	if err != nil {
		return nil, err
	}
	ev, err := s.event(event)
	if err != nil {
		return nil, err
	}
	data := map[string]any{"activity": a.ID, "event": ev.ID}
	if ev.ID == a.Start || ev.ID == a.End {
		return nil, s.reject(fmt.Errorf("splitting activity %d at its own boundary: %w", a.ID, ErrOutsideInterval), data)
	}
	if ev.Time.Before(s.StartTime(a)) || ev.Time.After(s.EndTime(a)) {
		return nil, s.reject(fmt.Errorf("splitting activity %d at %s: %w",
			a.ID, ev.Time.Format(time.DateTime), ErrOutsideInterval), data)
	}

	first := &Activity{
		ID:         s.activityIDs.Allocate(),
		Task:       a.Task,
		Start:      a.Start,
		End:        ev.ID,
		Allocation: a.Allocation,
	}
	s.activities[first.ID] = first
	s.events[a.Start].Subsequent.Remove(a.ID)
	a.Start = ev.ID
	ev.Subsequent.Add(a.ID)
	s.bind(first)

	s.rebook(a)
	s.rebook(first)
	s.updated()
	return first, nil
}

// Merge joins the activities meeting at event: the subsequent activity that
// ends soonest is removed and every prior activity is extended to its end.
// It returns the extended activities.
func (s *Session) Merge(event int) ([]*Activity, error) {
	ev, err := s.event(event)
	if err != nil {
		return nil, err
	}
	if len(ev.Prior) == 0 || len(ev.Subsequent) == 0 {
		return nil, s.reject(fmt.Errorf("merging at event %d: %w", ev.ID, ErrNothingToMerge), map[string]any{"event": ev.ID})
	}

	var next *Activity
	for _, id := range ev.Subsequent {
		q := s.activities[id]
		if next == nil || s.EndTime(q).Before(s.EndTime(next)) {
			next = q
		}
	}
	end := next.End
	s.dropActivity(next)

	var extended []*Activity
	var closing *Event
	for i, id := range ev.Prior.IDs() {
		p := s.activities[id]
		if end != NowID && p.Start == end {
			s.dropDegenerate(p)
			continue
		}
		ev.Prior.Remove(p.ID)
		switch {
		case end != NowID:
			p.End = end
			s.events[end].Prior.Add(p.ID)
		case i == 0:
			p.End = NowID
			s.current = p.ID
		default:
			if closing == nil {
				closing = s.newEvent(s.clock.Now(), "")
			}
			p.End = closing.ID
			closing.Prior.Add(p.ID)
		}
		s.orderEnds(p, false)
		s.rebook(p)
		extended = append(extended, p)
	}
	s.collect(ev.ID, end)
	s.updated()
	return extended, nil
}

// MergeEvents folds every event within the configured merge window of event
// into it, rebinding their activities. Activities that would start and end
// at the same event are dropped. It returns the number of events folded.
func (s *Session) MergeEvents(event int) (int, error) {
	ev, err := s.event(event)
	if err != nil {
		return 0, err
	}
	window := s.cfg.MergeEventWindow
	merged := 0
	for _, other := range s.Events() {
		if other.ID == ev.ID {
			continue
		}
		gap := other.Time.Sub(ev.Time)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		s.fold(other, ev)
		merged++
	}
	s.collect(ev.ID)
	s.updated()
	return merged, nil
}

// fold moves every activity bound to from onto to and collects from. The
// caller collects to once it is done with it.
func (s *Session) fold(from, to *Event) {
	for _, id := range from.Prior.IDs() {
		a := s.activities[id]
		if a.Start == to.ID {
			s.dropDegenerate(a)
			continue
		}
		from.Prior.Remove(a.ID)
		a.End = to.ID
		to.Prior.Add(a.ID)
		s.orderEnds(a, false)
		s.rebook(a)
	}
	for _, id := range from.Subsequent.IDs() {
		a := s.activities[id]
		if a.End == to.ID {
			s.dropDegenerate(a)
			continue
		}
		from.Subsequent.Remove(a.ID)
		a.Start = to.ID
		to.Subsequent.Add(a.ID)
		s.orderEnds(a, false)
		s.rebook(a)
	}
	s.collect(from.ID)
}

func (s *Session) dropDegenerate(a *Activity) {
	s.warn(models.SeverityInfo, CodeInvalidOperation, map[string]any{"activity": a.ID},
		"dropping activity %d: it would start and end at the same event", a.ID)
	s.dropActivity(a)
}

// Expand stretches an open chain end to close the gap with its neighbour. A
// start with no earlier event that day moves to the working-day start (or
// midnight when already past it); otherwise it joins the previous event. An
// end is handled symmetrically with the working-day end and the next event.
func (s *Session) Expand(event int) error {
	ev, err := s.event(event)
	if err != nil {
		return err
	}
	loc := s.cfg.Loc()
	day := midnight(ev.Time, loc)
	startsChain := len(ev.Subsequent) > 0 && len(ev.Prior) == 0
	endsChain := len(ev.Prior) > 0 && len(ev.Subsequent) == 0

	switch {
	case startsChain:
		if prev := s.neighbour(ev, -1); prev != nil {
			s.fold(ev, prev)
			s.collect(prev.ID)
			break
		}
		target := day.Add(s.cfg.DayStart)
		if !ev.Time.After(target) {
			target = day
		}
		s.setTime(ev, target)
	case endsChain:
		if next := s.neighbour(ev, 1); next != nil {
			s.fold(ev, next)
			s.collect(next.ID)
			break
		}
		target := day.Add(s.cfg.DayEnd)
		if !ev.Time.Before(target) {
			target = endOfDay(ev.Time, loc)
		}
		s.setTime(ev, target)
	default:
		return s.reject(fmt.Errorf("expanding event %d: %w", ev.ID, ErrNotExpandable), map[string]any{"event": ev.ID})
	}
	s.updated()
	return nil
}

// neighbour returns the closest event on ev's day strictly before (dir < 0)
// or after (dir > 0) it.
func (s *Session) neighbour(ev *Event, dir int) *Event {
	loc := s.cfg.Loc()
	var best *Event
	for _, other := range s.events {
		if other.ID == ev.ID || !sameDay(other.Time, ev.Time, loc) {
			continue
		}
		if dir < 0 && other.Time.Before(ev.Time) && (best == nil || other.Time.After(best.Time)) {
			best = other
		}
		if dir > 0 && other.Time.After(ev.Time) && (best == nil || other.Time.Before(best.Time)) {
			best = other
		}
	}
	return best
}

// OccupyFullDay stretches an activity to span the working day it starts on.
// Events shared with other activities are left in place and replaced by new
// ones.
func (s *Session) OccupyFullDay(activity int) error {
	a, err := s.activity(activity)
	if err != nil {
		return err
	}
	day := midnight(s.StartTime(a), s.cfg.Loc())
	from := day.Add(s.cfg.DayStart)
	to := from.Add(s.cfg.WorkingDay())

	start := s.events[a.Start]
	if s.shared(start) {
		fresh := s.newEvent(from, "")
		start.Subsequent.Remove(a.ID)
		a.Start = fresh.ID
		fresh.Subsequent.Add(a.ID)
		s.collect(start.ID)
	} else {
		start.Time = from
	}

	switch {
	case a.Ongoing():
		s.endAt(a, s.newEvent(to, ""))
	case s.shared(s.events[a.End]):
		old := s.events[a.End]
		fresh := s.newEvent(to, "")
		old.Prior.Remove(a.ID)
		a.End = fresh.ID
		fresh.Prior.Add(a.ID)
		s.collect(old.ID)
	default:
		s.events[a.End].Time = to
	}
	s.retime(s.events[a.Start])
	s.retime(s.events[a.End])
	s.updated()
	return nil
}

func (s *Session) shared(ev *Event) bool {
	return len(ev.Prior)+len(ev.Subsequent) > 1
}

// SetEventTime moves an event, re-measuring every activity bound to it.
func (s *Session) SetEventTime(event int, t time.Time) error {
	ev, err := s.event(event)
	if err != nil {
		return err
	}
	s.setTime(ev, t)
	s.updated()
	return nil
}

func (s *Session) setTime(ev *Event, t time.Time) {
	ev.Time = t
	s.retime(ev)
}

// retime re-measures the activities bound to ev after its time changed.
func (s *Session) retime(ev *Event) {
	for _, id := range append(ev.Prior.IDs(), ev.Subsequent.IDs()...) {
		a := s.activities[id]
		s.orderEnds(a, true)
		s.rebook(a)
	}
}

// SetLabel changes an event's label. An event left unlabelled and
// unreferenced is dropped.
func (s *Session) SetLabel(event int, label string) error {
	ev, err := s.event(event)
	if err != nil {
		return err
	}
	ev.Label = label
	s.collect(ev.ID)
	s.updated()
	return nil
}

// SetRemind flags or clears an event's reminder.
func (s *Session) SetRemind(event int, remind bool) error {
	ev, err := s.event(event)
	if err != nil {
		return err
	}
	ev.Remind = remind
	if !remind {
		delete(s.notified, ev.ID)
	}
	return s.persist()
}

// SetAction attaches a pending action to an event. ActionStart needs the
// task to start.
func (s *Session) SetAction(event int, action models.ActionKind, task int) error {
	ev, err := s.event(event)
	if err != nil {
		return err
	}
	if action == models.ActionStart {
		t, err := s.tasks.GetTask(task)
		if err != nil {
			return fmt.Errorf("scheduling start: %w", err)
		}
		if ev.Label == "" {
			ev.Label = t.Name
		}
	} else {
		task = 0
	}
	ev.Action = action
	ev.ActionTask = task
	return s.persist()
}

// TryDelete drops the event if no activity is bound to it and it has no
// label. It reports whether the event was dropped.
func (s *Session) TryDelete(event int) bool {
	if !s.tryDelete(event) {
		return false
	}
	s.updated()
	return true
}

// DeleteActivity removes an activity, its booked time, and any events left
// unreferenced.
func (s *Session) DeleteActivity(activity int) error {
	a, err := s.activity(activity)
	if err != nil {
		return err
	}
	start, end := a.Start, a.End
	s.dropActivity(a)
	s.collect(start, end)
	return s.persist()
}

// Rebind moves an activity to another task, transferring its booked time.
func (s *Session) Rebind(activity, task int) error {
	a, err := s.activity(activity)
	if err != nil {
		return err
	}
	if _, err := s.tasks.GetTask(task); err != nil {
		return fmt.Errorf("rebinding activity %d: %w", a.ID, err)
	}
	if a.booked != 0 {
		s.tasks.AddAllocatedTime(a.Task, -a.booked)
		a.booked = 0
	}
	a.Task = task
	s.rebook(a)
	if a.Ongoing() {
		s.tasks.MarkStarted(task)
	}
	s.updated()
	return nil
}

// SetAllocation overrides the fraction of the activity booked to its task.
// Zero restores the task's allocation.
func (s *Session) SetAllocation(activity int, frac float64) error {
	a, err := s.activity(activity)
	if err != nil {
		return err
	}
	if frac < 0 || frac > 1 {
		return fmt.Errorf("allocation %.2f: must be between 0 and 1", frac)
	}
	a.Allocation = frac
	s.rebook(a)
	s.updated()
	return nil
}

// CollectGarbage drops every unreferenced, unlabelled event and returns how
// many were dropped.
func (s *Session) CollectGarbage() int {
	n := 0
	for _, ev := range s.Events() {
		if s.tryDelete(ev.ID) {
			n++
		}
	}
	if n > 0 {
		s.updated()
	}
	return n
}
