package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// NowID is the reserved event id standing for the live clock. It is the end
// of the current activity and is never stored.
const NowID = 0

var (
	ErrActivityNotFound  = errors.New("activity not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrOutsideInterval   = errors.New("event outside activity interval")
	ErrInvalidInterval   = errors.New("activity must start and end at different events")
	ErrNoCurrentActivity = errors.New("no current activity")
	ErrNothingToResume   = errors.New("no previous task to resume")
	ErrOngoing           = errors.New("activity is ongoing")
	ErrNothingToMerge    = errors.New("event has nothing to merge")
	ErrNotExpandable     = errors.New("event is not the open end of a chain")
	ErrInOrder           = errors.New("activity already starts before it ends")
)

// TaskLedger is the part of the task manager a session books time against.
type TaskLedger interface {
	GetTask(id int) (*models.Task, error)
	AddAllocatedTime(id int, delta time.Duration)
	MarkStarted(id int)
}

// Event is a point in time shared as the boundary of activities. Prior holds
// the activities ending here, Subsequent those starting here. Events returned
// by a Session are owned by it and must be treated as read-only.
type Event struct {
	ID         int
	Time       time.Time
	Label      string
	Remind     bool
	Action     models.ActionKind
	ActionTask int
	Prior      idSet
	Subsequent idSet
}

// Referenced reports whether any activity starts or ends at the event.
func (e *Event) Referenced() bool {
	return len(e.Prior) > 0 || len(e.Subsequent) > 0
}

// Garbage reports whether the event can be dropped: nothing starts or ends
// at it and it carries no label.
func (e *Event) Garbage() bool {
	return !e.Referenced() && e.Label == ""
}

// Activity is a time interval booked to one task. End is NowID while the
// activity is ongoing.
type Activity struct {
	ID         int
	Task       int
	Start      int
	End        int
	Allocation float64
	OutlookID  string

	duration time.Duration
	booked   time.Duration
}

// Ongoing reports whether the activity's end resolves to the live clock.
func (a *Activity) Ongoing() bool {
	return a.End == NowID
}

// Session is the event/activity graph of one calendar week. It is not safe
// for concurrent use; the host serialises every call.
type Session struct {
	cfg      models.EngineConfig
	clock    Clock
	tasks    TaskLedger
	reporter Reporter

	weekStart time.Time
	weekEnd   time.Time

	events      map[int]*Event
	activities  map[int]*Activity
	eventIDs    *IDPool
	activityIDs *IDPool

	current      int
	previousTask int

	notified  map[int]bool
	onUpdate  func()
	onPersist func() error
}

// NewSession creates an empty session for the week containing ref.
func NewSession(cfg models.EngineConfig, clock Clock, tasks TaskLedger, reporter Reporter, ref time.Time) *Session {
	if clock == nil {
		clock = SystemClock{}
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	ws := WeekStart(ref, cfg.Loc())
	return &Session{
		cfg:         cfg,
		clock:       clock,
		tasks:       tasks,
		reporter:    reporter,
		weekStart:   ws,
		weekEnd:     time.Date(ws.Year(), ws.Month(), ws.Day()+7, 0, 0, 0, 0, cfg.Loc()),
		events:      make(map[int]*Event),
		activities:  make(map[int]*Activity),
		eventIDs:    NewIDPool(),
		activityIDs: NewIDPool(),
		notified:    make(map[int]bool),
	}
}

// OnUpdate registers the hook invoked after every state change.
func (s *Session) OnUpdate(fn func()) { s.onUpdate = fn }

// OnPersist registers the hook invoked after changes to durable facts.
func (s *Session) OnPersist(fn func() error) { s.onPersist = fn }

func (s *Session) updated() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

func (s *Session) persist() error {
	s.updated()
	if s.onPersist == nil {
		return nil
	}
	if err := s.onPersist(); err != nil {
		s.warn(models.SeverityError, CodePersistFailed, nil, "saving session: %v", err)
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

func (s *Session) warn(sev models.Severity, code string, data map[string]any, format string, args ...any) {
	report(s.reporter, s.clock.Now(), sev, code, data, format, args...)
}

// Config returns the engine configuration the session was built with.
func (s *Session) Config() models.EngineConfig { return s.cfg }

// WeekStart returns Monday 00:00 of the session's week.
func (s *Session) WeekStart() time.Time { return s.weekStart }

// WeekEnd returns Monday 00:00 of the following week.
func (s *Session) WeekEnd() time.Time { return s.weekEnd }

// Event returns the event with the given id. NowID yields a synthetic event
// at the live clock whose only prior activity is the current one.
func (s *Session) Event(id int) (*Event, bool) {
	if id == NowID {
		now := &Event{ID: NowID, Time: s.clock.Now(), Label: "Now"}
		if s.current != 0 {
			now.Prior.Add(s.current)
		}
		return now, true
	}
	ev, ok := s.events[id]
	return ev, ok
}

// Activity returns the activity with the given id.
func (s *Session) Activity(id int) (*Activity, bool) {
	a, ok := s.activities[id]
	return a, ok
}

// Events returns every stored event ordered by time, then id.
func (s *Session) Events() []*Event {
	out := make([]*Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Activities returns every activity ordered by start time, then id.
func (s *Session) Activities() []*Activity {
	out := make([]*Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := s.StartTime(out[i]), s.StartTime(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Current returns the ongoing activity, if any.
func (s *Session) Current() (*Activity, bool) {
	if s.current == 0 {
		return nil, false
	}
	a, ok := s.activities[s.current]
	return a, ok
}

// PreviousTask returns the task of the last paused activity, or 0.
func (s *Session) PreviousTask() int { return s.previousTask }

func (s *Session) eventTime(id int) time.Time {
	if id == NowID {
		return s.clock.Now()
	}
	if ev, ok := s.events[id]; ok {
		return ev.Time
	}
	return time.Time{}
}

// StartTime returns the time of the activity's start event.
func (s *Session) StartTime(a *Activity) time.Time { return s.eventTime(a.Start) }

// EndTime returns the time of the activity's end event, or the live clock
// while it is ongoing.
func (s *Session) EndTime(a *Activity) time.Time { return s.eventTime(a.End) }

// Duration returns the length of an activity; ongoing activities are measured
// up to the live clock.
func (s *Session) Duration(a *Activity) time.Duration {
	if a.Ongoing() {
		d := s.clock.Now().Sub(s.StartTime(a))
		if d < 0 {
			return 0
		}
		return d
	}
	return a.duration
}

// Booked returns the time the activity contributes to its task: its
// duration scaled by the effective allocation.
func (s *Session) Booked(a *Activity) time.Duration {
	if a.Ongoing() {
		return scale(s.Duration(a), s.allocation(a))
	}
	return a.booked
}

// BookedByTask sums booked time per task, counting ongoing time up to now.
func (s *Session) BookedByTask() map[int]time.Duration {
	out := make(map[int]time.Duration)
	for _, a := range s.activities {
		out[a.Task] += s.Booked(a)
	}
	return out
}

func (s *Session) allocation(a *Activity) float64 {
	if a.Allocation > 0 && a.Allocation <= 1 {
		return a.Allocation
	}
	if s.tasks != nil {
		if t, err := s.tasks.GetTask(a.Task); err == nil {
			return t.EffectiveAllocation()
		}
	}
	return 1
}

func scale(d time.Duration, frac float64) time.Duration {
	if frac == 1 {
		return d
	}
	return time.Duration(float64(d) * frac)
}

// measure recomputes the cached duration and booked time from the graph.
func (s *Session) measure(a *Activity) (time.Duration, time.Duration) {
	if a.Ongoing() {
		return 0, 0
	}
	d := s.eventTime(a.End).Sub(s.eventTime(a.Start))
	if d < 0 {
		d = -d
	}
	return d, scale(d, s.allocation(a))
}

// rebook refreshes the cached duration and pushes the change in booked time
// to the task and its ancestors.
func (s *Session) rebook(a *Activity) {
	d, booked := s.measure(a)
	delta := booked - a.booked
	a.duration, a.booked = d, booked
	if delta != 0 && s.tasks != nil {
		s.tasks.AddAllocatedTime(a.Task, delta)
	}
}

func (s *Session) bind(a *Activity) {
	if ev, ok := s.events[a.Start]; ok {
		ev.Subsequent.Add(a.ID)
	}
	if ev, ok := s.events[a.End]; ok && a.End != NowID {
		ev.Prior.Add(a.ID)
	}
}

func (s *Session) unbind(a *Activity) {
	if ev, ok := s.events[a.Start]; ok {
		ev.Subsequent.Remove(a.ID)
	}
	if ev, ok := s.events[a.End]; ok && a.End != NowID {
		ev.Prior.Remove(a.ID)
	}
}

func (s *Session) newEvent(t time.Time, label string) *Event {
	ev := &Event{ID: s.eventIDs.Allocate(), Time: t, Label: label}
	s.events[ev.ID] = ev
	return ev
}

// eventAt returns an existing event at exactly t, other than the excluded
// ids, or creates one.
func (s *Session) eventAt(t time.Time, exclude ...int) *Event {
	for _, ev := range s.Events() {
		if ev.Time.Equal(t) && !containsInt(exclude, ev.ID) {
			return ev
		}
	}
	return s.newEvent(t, "")
}

func (s *Session) addActivity(task, start, end int) *Activity {
	a := &Activity{ID: s.activityIDs.Allocate(), Task: task, Start: start, End: end}
	s.activities[a.ID] = a
	s.bind(a)
	if a.End == NowID {
		s.current = a.ID
	}
	return a
}

// dropActivity removes an activity and its booked time without collecting
// its events; callers collect afterwards.
func (s *Session) dropActivity(a *Activity) {
	s.unbind(a)
	if a.booked != 0 && s.tasks != nil {
		s.tasks.AddAllocatedTime(a.Task, -a.booked)
	}
	delete(s.activities, a.ID)
	s.activityIDs.Release(a.ID)
	if s.current == a.ID {
		s.current = 0
	}
}

// endAt fixes the end of an ongoing activity at ev.
func (s *Session) endAt(a *Activity, ev *Event) {
	a.End = ev.ID
	ev.Prior.Add(a.ID)
	if s.current == a.ID {
		s.current = 0
	}
	s.rebook(a)
}

// closeCurrent ends the current activity at a fresh event at t, or at the
// live clock when t precedes the activity's start.
func (s *Session) closeCurrent(t time.Time) *Activity {
	cur, ok := s.Current()
	if !ok {
		return nil
	}
	if t.Before(s.StartTime(cur)) {
		t = s.clock.Now()
	}
	if t.Before(s.StartTime(cur)) {
		t = s.StartTime(cur)
	}
	s.endAt(cur, s.newEvent(t, ""))
	return cur
}

// collect drops each listed event that has become garbage.
func (s *Session) collect(ids ...int) {
	for _, id := range ids {
		s.tryDelete(id)
	}
}

func (s *Session) tryDelete(id int) bool {
	ev, ok := s.events[id]
	if !ok || !ev.Garbage() {
		return false
	}
	delete(s.events, id)
	s.eventIDs.Release(id)
	delete(s.notified, id)
	return true
}

// StartTask makes task the running task. A different running activity is
// closed at a new event shared with the new activity; starting the task that
// is already running is a no-op.
func (s *Session) StartTask(task int) (*Activity, error) {
	return s.startAt(task, nil)
}

func (s *Session) startAt(task int, at *Event) (*Activity, error) {
	t, err := s.tasks.GetTask(task)
	if err != nil {
		return nil, fmt.Errorf("starting task: %w", err)
	}
	if cur, ok := s.Current(); ok && cur.Task == task {
		return cur, nil
	}
	if !t.State.Runnable() {
		s.warn(models.SeverityWarning, CodeNotRunnable, map[string]any{"task": task, "state": t.State.String()},
			"starting task %q in state %s", t.Name, t.State)
	}

	now := s.clock.Now()
	if at == nil {
		at = s.newEvent(now, "")
	}
	if cur, ok := s.Current(); ok {
		if at.Time.Before(s.StartTime(cur)) {
			s.closeCurrent(now)
		} else {
			s.endAt(cur, at)
		}
	}

	a := s.addActivity(task, at.ID, NowID)
	s.previousTask = 0
	s.tasks.MarkStarted(task)
	s.warn(models.SeverityInfo, CodeActivityStarted, map[string]any{"task": task, "activity": a.ID},
		"started %q", t.Name)
	return a, s.persist()
}

// Pause closes the current activity at the live clock and remembers its task
// for Resume.
func (s *Session) Pause() (*Activity, error) {
	cur, ok := s.Current()
	if !ok {
		return nil, ErrNoCurrentActivity
	}
	s.closeCurrent(s.clock.Now())
	s.previousTask = cur.Task
	s.warn(models.SeverityInfo, CodeActivityPaused,
		map[string]any{"task": cur.Task, "activity": cur.ID, "duration": cur.duration.String()},
		"paused activity %d after %s", cur.ID, cur.duration)
	return cur, s.persist()
}

// Resume restarts the task that was running before the last pause. It is a
// no-op while an activity is running.
func (s *Session) Resume() (*Activity, error) {
	if cur, ok := s.Current(); ok {
		return cur, nil
	}
	if s.previousTask == 0 {
		return nil, ErrNothingToResume
	}
	return s.StartTask(s.previousTask)
}

// CheckInvariants verifies the graph's structural invariants and returns the
// first violation found.
func (s *Session) CheckInvariants() error {
	ongoing := 0
	for _, a := range s.activities {
		if a.ID <= 0 {
			return fmt.Errorf("activity with non-positive id %d", a.ID)
		}
		start, ok := s.events[a.Start]
		if !ok {
			return fmt.Errorf("activity %d: start event %d missing", a.ID, a.Start)
		}
		if !start.Subsequent.Has(a.ID) {
			return fmt.Errorf("activity %d: not in subsequent set of event %d", a.ID, a.Start)
		}
		if a.Ongoing() {
			ongoing++
			if s.current != a.ID {
				return fmt.Errorf("activity %d is ongoing but current is %d", a.ID, s.current)
			}
			continue
		}
		end, ok := s.events[a.End]
		if !ok {
			return fmt.Errorf("activity %d: end event %d missing", a.ID, a.End)
		}
		if !end.Prior.Has(a.ID) {
			return fmt.Errorf("activity %d: not in prior set of event %d", a.ID, a.End)
		}
		if start.Time.After(end.Time) {
			return fmt.Errorf("activity %d: starts after it ends", a.ID)
		}
	}
	if ongoing > 1 {
		return fmt.Errorf("%d ongoing activities", ongoing)
	}
	if s.current != 0 && ongoing == 0 {
		return fmt.Errorf("current activity %d is not ongoing", s.current)
	}
	for _, ev := range s.events {
		if ev.ID <= 0 {
			return fmt.Errorf("event with non-positive id %d", ev.ID)
		}
		if ev.Garbage() {
			return fmt.Errorf("event %d is unreferenced", ev.ID)
		}
		for _, id := range ev.Prior {
			if a, ok := s.activities[id]; !ok || a.End != ev.ID {
				return fmt.Errorf("event %d: stale prior activity %d", ev.ID, id)
			}
		}
		for _, id := range ev.Subsequent {
			if a, ok := s.activities[id]; !ok || a.Start != ev.ID {
				return fmt.Errorf("event %d: stale subsequent activity %d", ev.ID, id)
			}
		}
	}
	return nil
}

// idSet is a sorted set of ids.
type idSet []int

// Has reports whether id is in the set.
func (s idSet) Has(id int) bool {
	i := sort.SearchInts(s, id)
	return i < len(s) && s[i] == id
}

// Add inserts id, keeping the set sorted.
func (s *idSet) Add(id int) {
	i := sort.SearchInts(*s, id)
	if i < len(*s) && (*s)[i] == id {
		return
	}
	*s = append(*s, 0)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = id
}

// Remove deletes id if present.
func (s *idSet) Remove(id int) {
	i := sort.SearchInts(*s, id)
	if i < len(*s) && (*s)[i] == id {
		*s = append((*s)[:i], (*s)[i+1:]...)
	}
}

// IDs returns a copy of the members.
func (s idSet) IDs() []int {
	return append([]int(nil), s...)
}
