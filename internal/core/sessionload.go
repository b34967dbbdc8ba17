package core

import (
	"sort"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// Snapshot returns the persisted form of the session. Only events that are
// referenced or labelled are written.
func (s *Session) Snapshot() models.SessionRecord {
	rec := models.SessionRecord{
		CurrentActivity: s.current,
		PreviousTask:    s.previousTask,
	}
	for _, a := range s.activities {
		rec.Activities = append(rec.Activities, models.ActivityRecord{
			ID:         a.ID,
			Task:       a.Task,
			Start:      a.Start,
			End:        a.End,
			OutlookID:  a.OutlookID,
			Allocation: a.Allocation,
		})
	}
	sort.Slice(rec.Activities, func(i, j int) bool { return rec.Activities[i].ID < rec.Activities[j].ID })
	for _, ev := range s.events {
		if ev.Garbage() {
			continue
		}
		rec.Events = append(rec.Events, models.EventRecord{
			ID:         ev.ID,
			Time:       ev.Time,
			Label:      ev.Label,
			Remind:     ev.Remind,
			Action:     ev.Action,
			ActionTask: ev.ActionTask,
			Prior:      ev.Prior.IDs(),
			Subsequent: ev.Subsequent.IDs(),
		})
	}
	sort.Slice(rec.Events, func(i, j int) bool { return rec.Events[i].ID < rec.Events[j].ID })
	return rec
}

// LoadSession rebuilds a session from its persisted form and normalises it.
// An activity's own start and end are authoritative; event membership lists
// are only consulted to recover a missing endpoint. Records that cannot be
// resolved are dropped with a warning. Task allocated times are assumed to
// already include the loaded activities, so only repairs are booked.
func LoadSession(rec models.SessionRecord, cfg models.EngineConfig, clock Clock, tasks TaskLedger, reporter Reporter, ref time.Time) (*Session, NormaliseReport) {
	s := NewSession(cfg, clock, tasks, reporter, ref)

	for _, er := range rec.Events {
		if err := s.eventIDs.Claim(er.ID); err != nil {
			s.warn(models.SeverityWarning, CodeDuplicateID, map[string]any{"event": er.ID}, "dropping event: %v", err)
			continue
		}
		if er.Time.IsZero() {
			s.eventIDs.Release(er.ID)
			s.warn(models.SeverityWarning, CodeDanglingEvent, map[string]any{"event": er.ID}, "dropping event %d: no time", er.ID)
			continue
		}
		s.events[er.ID] = &Event{
			ID:         er.ID,
			Time:       er.Time,
			Label:      er.Label,
			Remind:     er.Remind,
			Action:     er.Action,
			ActionTask: er.ActionTask,
		}
	}

	startOf, endOf := membershipIndex(rec.Events)
	mismatches := 0
	var ongoing []*Activity
	for _, ar := range rec.Activities {
		data := map[string]any{"activity": ar.ID}
		if err := s.activityIDs.Claim(ar.ID); err != nil {
			s.warn(models.SeverityWarning, CodeDuplicateID, data, "dropping activity: %v", err)
			continue
		}
		if _, err := tasks.GetTask(ar.Task); err != nil {
			s.activityIDs.Release(ar.ID)
			s.warn(models.SeverityWarning, CodeUnknownTask, data, "dropping activity %d: %v", ar.ID, err)
			continue
		}
		a := &Activity{ID: ar.ID, Task: ar.Task, Start: ar.Start, End: ar.End, OutlookID: ar.OutlookID, Allocation: ar.Allocation}

		if _, ok := s.events[a.Start]; !ok {
			recovered, found := startOf[a.ID]
			if _, exists := s.events[recovered]; !found || !exists {
				s.activityIDs.Release(a.ID)
				s.warn(models.SeverityWarning, CodeDanglingActivity, data,
					"dropping activity %d: start event %d missing", a.ID, a.Start)
				continue
			}
			a.Start = recovered
			mismatches++
		} else if sid, found := startOf[a.ID]; !found || sid != a.Start {
			mismatches++
		}

		if a.End != NowID {
			if _, ok := s.events[a.End]; !ok {
				recovered, found := endOf[a.ID]
				if _, exists := s.events[recovered]; found && exists && recovered != a.Start {
					a.End = recovered
				} else {
					s.warn(models.SeverityWarning, CodeDanglingActivity, data,
						"activity %d: end event %d missing; treating it as unfinished", a.ID, ar.End)
					a.End = NowID
				}
				mismatches++
			} else if eid, found := endOf[a.ID]; !found || eid != a.End {
				mismatches++
			}
		}
		if a.End == a.Start {
			s.activityIDs.Release(a.ID)
			s.warn(models.SeverityWarning, CodeDanglingActivity, data,
				"dropping activity %d: starts and ends at event %d", a.ID, a.Start)
			continue
		}

		s.activities[a.ID] = a
		s.bind(a)
		a.duration, a.booked = s.measure(a)
		if a.Ongoing() {
			ongoing = append(ongoing, a)
		}
	}
	if mismatches > 0 {
		s.warn(models.SeverityWarning, CodeMembership, map[string]any{"count": mismatches},
			"%d event membership entries disagreed with their activities; rebuilt from activities", mismatches)
	}

	s.restoreCurrent(rec.CurrentActivity, ongoing)

	if rec.PreviousTask != 0 {
		if _, err := tasks.GetTask(rec.PreviousTask); err == nil {
			s.previousTask = rec.PreviousTask
		} else {
			s.warn(models.SeverityWarning, CodeUnknownTask, map[string]any{"task": rec.PreviousTask},
				"previous task %d no longer exists", rec.PreviousTask)
		}
	}

	return s, s.Normalise()
}

// restoreCurrent picks the current activity. The recorded one wins when it
// is still ongoing; other ongoing activities are left for Normalise.
func (s *Session) restoreCurrent(recorded int, ongoing []*Activity) {
	if a, ok := s.activities[recorded]; ok && a.Ongoing() {
		s.current = a.ID
	} else if recorded != 0 {
		s.warn(models.SeverityWarning, CodeDanglingActivity, map[string]any{"activity": recorded},
			"recorded current activity %d is not running", recorded)
	}
	if len(ongoing) > 1 {
		s.warn(models.SeverityWarning, CodeMultipleCurrent, map[string]any{"count": len(ongoing)},
			"%d activities were left running", len(ongoing))
	}
}

// membershipIndex maps activity ids to the events listing them as starting
// or ending there. The first listing wins.
func membershipIndex(events []models.EventRecord) (startOf, endOf map[int]int) {
	startOf = make(map[int]int)
	endOf = make(map[int]int)
	for _, er := range events {
		for _, id := range er.Subsequent {
			if _, seen := startOf[id]; !seen {
				startOf[id] = er.ID
			}
		}
		for _, id := range er.Prior {
			if _, seen := endOf[id]; !seen {
				endOf[id] = er.ID
			}
		}
	}
	return startOf, endOf
}
