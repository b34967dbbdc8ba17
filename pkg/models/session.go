package models

import (
	"fmt"
	"time"
)

// ActionKind is the pending action attached to an event.
type ActionKind int

const (
	ActionNone ActionKind = iota
	// ActionDelay shifts the event, and everything reachable forward from it,
	// while it is overdue.
	ActionDelay
	// ActionStart starts the bound task once the event time has passed.
	ActionStart
)

// EventRecord is the persisted form of an event node.
type EventRecord struct {
	ID         int
	Time       time.Time
	Label      string
	Remind     bool
	Action     ActionKind
	ActionTask int
	Prior      []int
	Subsequent []int
}

// ActivityRecord is the persisted form of an activity interval. End is 0 for
// an activity without an end event.
type ActivityRecord struct {
	ID         int
	Task       int
	Start      int
	End        int
	OutlookID  string
	Allocation float64
}

// SessionRecord is the persisted form of one calendar week.
type SessionRecord struct {
	CurrentActivity int
	PreviousTask    int
	Activities      []ActivityRecord
	Events          []EventRecord
}

// TaskFile is the persisted form of the task tree. Tasks are listed root
// first in tree order; hierarchy is carried by Parent. Retired lists the ids
// of deleted tasks, which are never handed out again.
type TaskFile struct {
	Tasks   []Task
	Recent  []int
	Retired []int
	Notes   string
}

// Reminder is a due event surfaced to the host.
type Reminder struct {
	EventID int
	Time    time.Time
	Label   string
	Task    int
}

// TaskTotal is the booked time of one task over a week. Booked includes the
// task's descendants; Own counts only activities on the task itself.
type TaskTotal struct {
	TaskID        int
	Name          string
	BookingNumber string
	Billable      bool
	Booked        time.Duration
	Own           time.Duration
}

// WeekKey names the ISO week containing t, e.g. "2026-W42". Session files
// are keyed by it.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
