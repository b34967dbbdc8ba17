package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskState represents the lifecycle state of a task.
type TaskState int

const (
	StateDeleted TaskState = iota
	StateNew
	StatePending
	StateActive
	StateScheduled
	StateParent
	StateInactive
	StateComplete
)

var stateNames = [...]string{
	StateDeleted:   "Deleted",
	StateNew:       "New",
	StatePending:   "Pending",
	StateActive:    "Active",
	StateScheduled: "Scheduled",
	StateParent:    "Parent",
	StateInactive:  "Inactive",
	StateComplete:  "Complete",
}

func (s TaskState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
	return stateNames[s]
}

// Runnable reports whether activities are expected to be started on a task
// in this state.
func (s TaskState) Runnable() bool {
	switch s {
	case StatePending, StateActive, StateScheduled:
		return true
	case StateDeleted, StateNew, StateParent, StateInactive, StateComplete:
		return false
	}
	return false
}

// Incomplete reports whether the state still counts towards outstanding work.
func (s TaskState) Incomplete() bool {
	switch s {
	case StateComplete, StateDeleted, StateInactive:
		return false
	case StateNew, StatePending, StateActive, StateScheduled, StateParent:
		return true
	}
	return true
}

// ParseTaskState converts a persisted state name, case-insensitively.
func ParseTaskState(s string) (TaskState, error) {
	for i, name := range stateNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return TaskState(i), nil
		}
	}
	return StatePending, fmt.Errorf("unknown task state %q", s)
}

// Metric selects how progress on a task is measured.
type Metric int

const (
	MetricTime Metric = iota
	MetricQuantity
)

func (m Metric) String() string {
	if m == MetricQuantity {
		return "Quantity"
	}
	return "Time"
}

// ParseMetric converts a persisted metric name. Empty input means Time.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "time":
		return MetricTime, nil
	case "quantity":
		return MetricQuantity, nil
	}
	return MetricTime, fmt.Errorf("unknown metric %q", s)
}

// Task is a node in the global task hierarchy. Relationships are held as ids
// into the owning task manager's arena; Parent is 0 for root tasks.
type Task struct {
	ID            int
	Name          string
	BookingNumber string
	State         TaskState
	Priority      float64
	Allocation    float64
	AllocatedTime time.Duration
	EstimatedTime time.Duration
	Metric        Metric
	QuantityDone  float64
	QuantityTotal float64
	StartDate     time.Time
	EndDate       time.Time
	Notes         string
	Parent        int
	Children      []int
	Recurring     []string
	OutlookID     string
	Progress      float64
}

// Clone returns a deep copy so callers cannot mutate arena state.
func (t *Task) Clone() *Task {
	c := *t
	c.Children = append([]int(nil), t.Children...)
	c.Recurring = append([]string(nil), t.Recurring...)
	return &c
}

// EffectiveAllocation returns the task's allocation fraction, treating an
// unset value as a full allocation.
func (t *Task) EffectiveAllocation() float64 {
	if t.Allocation <= 0 || t.Allocation > 1 {
		return 1
	}
	return t.Allocation
}

// HasCorrelation reports whether id matches the task's external ids.
func (t *Task) HasCorrelation(id string) bool {
	if id == "" {
		return false
	}
	if t.OutlookID == id {
		return true
	}
	for _, r := range t.Recurring {
		if r == id {
			return true
		}
	}
	return false
}
