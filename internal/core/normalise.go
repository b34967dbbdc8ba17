package core

import (
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// maxNormalisePasses bounds the fixpoint loop; each repair step converges in
// one pass, so a second pass only mops up what a later step exposed.
const maxNormalisePasses = 4

// NormaliseReport counts the repairs made by Normalise.
type NormaliseReport struct {
	Unfinished int
	Overnight  int
	Joined     int
	Reordered  int
	Collected  int
}

// Changed reports whether any repair was made.
func (r NormaliseReport) Changed() bool {
	return r.Unfinished+r.Overnight+r.Joined+r.Reordered+r.Collected > 0
}

func (r *NormaliseReport) add(o NormaliseReport) {
	r.Unfinished += o.Unfinished
	r.Overnight += o.Overnight
	r.Joined += o.Joined
	r.Reordered += o.Reordered
	r.Collected += o.Collected
}

// Normalise repairs the graph: it closes stray unfinished activities, splits
// activities that run past midnight, joins back-to-back activities of the
// same task, swaps inverted ends and drops garbage events. Running it twice
// changes nothing the second time.
func (s *Session) Normalise() NormaliseReport {
	var total NormaliseReport
	for i := 0; i < maxNormalisePasses; i++ {
		var pass NormaliseReport
		pass.Unfinished = s.closeUnfinished()
		if !s.cfg.AllowOvernight {
			pass.Overnight = s.splitOvernight()
		}
		if s.cfg.JoinActivities {
			pass.Joined = s.joinAdjacent()
		}
		pass.Reordered = s.reorderEnds()
		pass.Collected = s.collectAll()
		total.add(pass)
		if !pass.Changed() {
			break
		}
	}
	if total.Changed() {
		s.updated()
	}
	return total
}

// closeUnfinished ends every ongoing activity other than the current one.
// With AllowUnfinished the latest-starting one may instead become current
// when nothing is running.
func (s *Session) closeUnfinished() int {
	var stray []*Activity
	for _, a := range s.Activities() {
		if a.Ongoing() && a.ID != s.current {
			stray = append(stray, a)
		}
	}
	if len(stray) == 0 {
		return 0
	}
	if s.cfg.AllowUnfinished && s.current == 0 {
		last := stray[len(stray)-1]
		s.current = last.ID
		stray = stray[:len(stray)-1]
	}

	loc := s.cfg.Loc()
	today := midnight(s.clock.Now(), loc)
	for _, a := range stray {
		start := s.StartTime(a)
		var end *Event
		if start.Before(today) {
			end = s.nextEventAfter(start, a.Start)
		}
		if end == nil {
			t := midnight(start, loc).Add(s.cfg.DayEnd)
			if !t.After(start) {
				t = endOfDay(start, loc)
			}
			if t.Before(start) {
				t = start
			}
			end = s.newEvent(t, "")
		}
		a.End = end.ID
		end.Prior.Add(a.ID)
		s.rebook(a)
		s.warn(models.SeverityWarning, CodeUnfinished,
			map[string]any{"activity": a.ID, "end": end.Time.Format(time.DateTime)},
			"activity %d was left running; ended it at %s", a.ID, end.Time.Format(time.DateTime))
	}
	return len(stray)
}

func (s *Session) nextEventAfter(t time.Time, exclude int) *Event {
	for _, ev := range s.Events() {
		if ev.ID != exclude && ev.Time.After(t) {
			return ev
		}
	}
	return nil
}

// crossesMidnight reports whether an interval runs into a later day. An
// interval ending exactly at midnight belongs to the day it started.
func crossesMidnight(start, end time.Time, loc *time.Location) bool {
	return end.After(nextDay(start, loc))
}

// splitOvernight cuts every completed activity at each midnight it spans.
// The first part ends at the working-day end and the next part resumes at
// the working-day start; when those do not fit inside the interval the cut
// falls at 23:59:59 and 00:00:00 instead.
func (s *Session) splitOvernight() int {
	loc := s.cfg.Loc()
	n := 0
	for _, a := range s.Activities() {
		for !a.Ongoing() && crossesMidnight(s.StartTime(a), s.EndTime(a), loc) {
			start, end := s.StartTime(a), s.EndTime(a)
			firstEnd := midnight(start, loc).Add(s.cfg.DayEnd)
			nextStart := nextDay(start, loc).Add(s.cfg.DayStart)
			if !firstEnd.After(start) || !nextStart.Before(end) {
				firstEnd = endOfDay(start, loc)
				nextStart = nextDay(start, loc)
			}
			cut := s.eventAt(firstEnd, a.Start, a.End)
			resume := s.eventAt(nextStart, a.Start, a.End, cut.ID)

			rest := &Activity{
				ID:         s.activityIDs.Allocate(),
				Task:       a.Task,
				Start:      resume.ID,
				End:        a.End,
				Allocation: a.Allocation,
			}
			s.activities[rest.ID] = rest
			s.events[a.End].Prior.Remove(a.ID)
			a.End = cut.ID
			cut.Prior.Add(a.ID)
			s.bind(rest)
			s.rebook(a)
			s.rebook(rest)
			s.warn(models.SeverityInfo, CodeOvernight, map[string]any{"activity": a.ID, "continued": rest.ID},
				"activity %d ran past midnight; continued as %d", a.ID, rest.ID)
			n++
			a = rest
		}
	}
	return n
}

// joinAdjacent merges pairs of activities on the same task that meet at a
// shared event.
func (s *Session) joinAdjacent() int {
	n := 0
	for {
		p, q := s.findJoinable()
		if p == nil {
			return n
		}
		at := s.events[p.End]
		end := q.End
		s.dropActivity(q)
		at.Prior.Remove(p.ID)
		p.End = end
		if end == NowID {
			s.current = p.ID
		} else {
			s.events[end].Prior.Add(p.ID)
		}
		s.rebook(p)
		s.collect(at.ID)
		s.warn(models.SeverityInfo, CodeJoined, map[string]any{"activity": p.ID, "event": at.ID},
			"joined consecutive activities on task %d", p.Task)
		n++
	}
}

func (s *Session) findJoinable() (*Activity, *Activity) {
	loc := s.cfg.Loc()
	for _, ev := range s.Events() {
		for _, pid := range ev.Prior {
			p := s.activities[pid]
			for _, qid := range ev.Subsequent {
				q := s.activities[qid]
				if p.Task != q.Task || p.Allocation != q.Allocation || q.End == p.Start {
					continue
				}
				if !s.cfg.AllowOvernight && !q.Ongoing() && crossesMidnight(s.StartTime(p), s.EndTime(q), loc) {
					continue
				}
				return p, q
			}
		}
	}
	return nil, nil
}

func (s *Session) reorderEnds() int {
	n := 0
	for _, a := range s.Activities() {
		if s.orderEnds(a, true) {
			n++
		}
	}
	return n
}

func (s *Session) collectAll() int {
	n := 0
	for _, ev := range s.Events() {
		if s.tryDelete(ev.ID) {
			n++
		}
	}
	if n > 0 {
		s.warn(models.SeverityInfo, CodeCollected, map[string]any{"count": n},
			"dropped %d unreferenced events", n)
	}
	return n
}
