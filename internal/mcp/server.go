// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the time tracker as MCP tools, so an assistant can start, pause and report
// on tasks.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/internal/observability"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

// Server wraps the tracker and exposes it as MCP tools. Tool calls are
// serialised; the tracker itself is single-threaded.
type Server struct {
	server      *gomcp.Server
	mu          sync.Mutex
	tracker     *core.Tracker
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server over an opened tracker. metricsCalc and
// alertEngine may be nil if no event log is configured.
func NewServer(tracker *core.Tracker, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		tracker:     tracker,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "wt", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// Tick runs the tracker's periodic scan between tool calls and returns the
// due reminders.
func (s *Server) Tick() ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Tick()
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskOutput struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Parent        int     `json:"parent,omitempty"`
	State         string  `json:"state"`
	BookingNumber string  `json:"booking_number,omitempty"`
	Allocated     string  `json:"allocated"`
	Progress      float64 `json:"progress"`
}

type listTasksInput struct {
	State string `json:"state,omitempty" jsonschema:"filter tasks by state (pending, active, scheduled, parent, inactive, complete)"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type startTaskInput struct {
	TaskID int `json:"task_id" jsonschema:"required,the numeric id of the task to start"`
}

type activityOutput struct {
	ID       int    `json:"id"`
	TaskID   int    `json:"task_id"`
	Task     string `json:"task"`
	Start    string `json:"start"`
	End      string `json:"end,omitempty"`
	Duration string `json:"duration"`
	Ongoing  bool   `json:"ongoing"`
}

type emptyInput struct{}

type statusOutput struct {
	Week         string          `json:"week"`
	Running      bool            `json:"running"`
	Current      *activityOutput `json:"current,omitempty"`
	PreviousTask int             `json:"previous_task,omitempty"`
	BookedToday  string          `json:"booked_today"`
	BookedWeek   string          `json:"booked_week"`
}

type upcomingEventsInput struct {
	Hours int `json:"hours,omitempty" jsonschema:"look-ahead window in hours. Defaults to 24."`
}

type eventOutput struct {
	ID     int    `json:"id"`
	Time   string `json:"time"`
	Label  string `json:"label,omitempty"`
	Remind bool   `json:"remind"`
	Action string `json:"action,omitempty"`
	TaskID int    `json:"task_id,omitempty"`
}

type upcomingEventsOutput struct {
	Events []eventOutput `json:"events"`
	Count  int           `json:"count"`
}

type totalOutput struct {
	TaskID        int    `json:"task_id"`
	Name          string `json:"name"`
	BookingNumber string `json:"booking_number,omitempty"`
	Billable      bool   `json:"billable"`
	Booked        string `json:"booked"`
	Own           string `json:"own"`
}

type weekReportOutput struct {
	Week   string        `json:"week"`
	Totals []totalOutput `json:"totals"`
	Daily  []string      `json:"daily"`
	Total  string        `json:"total"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	ActivitiesStarted   int            `json:"activities_started"`
	ActivitiesPaused    int            `json:"activities_paused"`
	ActivitiesContinued int            `json:"activities_continued"`
	Repairs             int            `json:"repairs"`
	RepairsByKind       map[string]int `json:"repairs_by_kind"`
	LoadProblems        int            `json:"load_problems"`
	RemindersDue        int            `json:"reminders_due"`
	Imported            int            `json:"imported"`
	ImportSkipped       int            `json:"import_skipped"`
	PersistFailures     int            `json:"persist_failures"`
	EventCount          int            `json:"event_count"`
	OldestEvent         string         `json:"oldest_event,omitempty"`
	NewestEvent         string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List the task tree in order, optionally filtered by state. Each task carries its id, which start_task expects.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "start_task",
		Description: "Start booking time on a task. The running activity, if any, ends now.",
	}, s.handleStartTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "pause",
		Description: "End the running activity now and remember its task for resume.",
	}, s.handlePause)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "resume",
		Description: "Restart the task that was running before the last pause.",
	}, s.handleResume)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "status",
		Description: "Show the running activity and the time booked today and this week.",
	}, s.handleStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "upcoming_events",
		Description: "List events with a reminder or pending action in the coming hours.",
	}, s.handleUpcomingEvents)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "week_report",
		Description: "Booked time of the open week per task and per weekday.",
	}, s.handleWeekReport)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get tracker metrics from the event log: activities started, repairs, reminders and import counts.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Get active alerts such as failed saves, corrupt records and frequent repairs.",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := -1
	if input.State != "" {
		state, err := models.ParseTaskState(input.State)
		if err != nil {
			return errorResult(err.Error()), listTasksOutput{}, nil
		}
		filter = int(state)
	}

	out := listTasksOutput{Tasks: []taskOutput{}}
	for _, t := range s.tracker.Tasks().AllTasks() {
		if filter >= 0 && int(t.State) != filter {
			continue
		}
		out.Tasks = append(out.Tasks, s.taskToOutput(t))
	}
	out.Count = len(out.Tasks)
	return nil, out, nil
}

func (s *Server) handleStartTask(_ context.Context, _ *gomcp.CallToolRequest, input startTaskInput) (*gomcp.CallToolResult, activityOutput, error) {
	if input.TaskID <= 0 {
		return errorResult("task_id is required"), activityOutput{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tracker.Rollover(); err != nil {
		return errorResult(fmt.Sprintf("opening week: %s", err)), activityOutput{}, nil
	}
	a, err := s.tracker.Session().StartTask(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("starting task %d: %s", input.TaskID, err)), activityOutput{}, nil
	}
	return nil, s.activityToOutput(a), nil
}

func (s *Server) handlePause(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, activityOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tracker.Rollover(); err != nil {
		return errorResult(fmt.Sprintf("opening week: %s", err)), activityOutput{}, nil
	}
	a, err := s.tracker.Session().Pause()
	if err != nil {
		if errors.Is(err, core.ErrNoCurrentActivity) {
			return errorResult("nothing is running"), activityOutput{}, nil
		}
		return errorResult(fmt.Sprintf("pausing: %s", err)), activityOutput{}, nil
	}
	return nil, s.activityToOutput(a), nil
}

func (s *Server) handleResume(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, activityOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tracker.Rollover(); err != nil {
		return errorResult(fmt.Sprintf("opening week: %s", err)), activityOutput{}, nil
	}
	a, err := s.tracker.Session().Resume()
	if err != nil {
		if errors.Is(err, core.ErrNothingToResume) {
			return errorResult("no paused task to resume"), activityOutput{}, nil
		}
		return errorResult(fmt.Sprintf("resuming: %s", err)), activityOutput{}, nil
	}
	return nil, s.activityToOutput(a), nil
}

func (s *Server) handleStatus(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, statusOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tracker.Rollover(); err != nil {
		return errorResult(fmt.Sprintf("opening week: %s", err)), statusOutput{}, nil
	}
	sess := s.tracker.Session()
	out := statusOutput{
		Week:         models.WeekKey(sess.WeekStart()),
		PreviousTask: sess.PreviousTask(),
	}
	if cur, ok := sess.Current(); ok {
		a := s.activityToOutput(cur)
		out.Running = true
		out.Current = &a
	}

	loc := s.tracker.Config().Loc()
	today := int(s.tracker.Now().In(loc).Weekday()+6) % 7
	daily := s.tracker.DailyTotals()
	var week time.Duration
	for _, d := range daily {
		week += d
	}
	out.BookedToday = daily[today].String()
	out.BookedWeek = week.String()
	return nil, out, nil
}

func (s *Server) handleUpcomingEvents(_ context.Context, _ *gomcp.CallToolRequest, input upcomingEventsInput) (*gomcp.CallToolResult, upcomingEventsOutput, error) {
	hours := input.Hours
	if hours == 0 {
		hours = 24
	}
	if hours < 0 {
		return errorResult("hours must not be negative"), upcomingEventsOutput{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tracker.Rollover(); err != nil {
		return errorResult(fmt.Sprintf("opening week: %s", err)), upcomingEventsOutput{}, nil
	}
	now := s.tracker.Now()
	until := now.Add(time.Duration(hours) * time.Hour)

	out := upcomingEventsOutput{Events: []eventOutput{}}
	for _, ev := range s.tracker.Session().Events() {
		if !ev.Remind && ev.Action == models.ActionNone {
			continue
		}
		if ev.Time.Before(now) || ev.Time.After(until) {
			continue
		}
		out.Events = append(out.Events, eventToOutput(ev))
	}
	sort.Slice(out.Events, func(i, j int) bool {
		if out.Events[i].Time != out.Events[j].Time {
			return out.Events[i].Time < out.Events[j].Time
		}
		return out.Events[i].ID < out.Events[j].ID
	})
	out.Count = len(out.Events)
	return nil, out, nil
}

func (s *Server) handleWeekReport(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, weekReportOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tracker.Rollover(); err != nil {
		return errorResult(fmt.Sprintf("opening week: %s", err)), weekReportOutput{}, nil
	}
	out := weekReportOutput{
		Week:   models.WeekKey(s.tracker.Session().WeekStart()),
		Totals: []totalOutput{},
	}
	for _, t := range s.tracker.Totals() {
		out.Totals = append(out.Totals, totalOutput{
			TaskID:        t.TaskID,
			Name:          t.Name,
			BookingNumber: t.BookingNumber,
			Billable:      t.Billable,
			Booked:        t.Booked.String(),
			Own:           t.Own.String(),
		})
	}
	var total time.Duration
	for _, d := range s.tracker.DailyTotals() {
		out.Daily = append(out.Daily, d.String())
		total += d
	}
	out.Total = total.String()
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (no event log configured)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}
	out := metricsOutput{
		ActivitiesStarted:   metrics.ActivitiesStarted,
		ActivitiesPaused:    metrics.ActivitiesPaused,
		ActivitiesContinued: metrics.ActivitiesContinued,
		Repairs:             metrics.Repairs,
		RepairsByKind:       metrics.RepairsByKind,
		LoadProblems:        metrics.LoadProblems,
		RemindersDue:        metrics.RemindersDue,
		Imported:            metrics.Imported,
		ImportSkipped:       metrics.ImportSkipped,
		PersistFailures:     metrics.PersistFailures,
		EventCount:          metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (no event log configured)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate(s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func (s *Server) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Now()
}

func (s *Server) taskToOutput(t *models.Task) taskOutput {
	tasks := s.tracker.Tasks()
	return taskOutput{
		ID:            t.ID,
		Name:          t.Name,
		Parent:        t.Parent,
		State:         t.State.String(),
		BookingNumber: tasks.EffectiveBookingNumber(t.ID),
		Allocated:     t.AllocatedTime.String(),
		Progress:      tasks.Progress(t.ID),
	}
}

func (s *Server) activityToOutput(a *core.Activity) activityOutput {
	sess := s.tracker.Session()
	out := activityOutput{
		ID:       a.ID,
		TaskID:   a.Task,
		Start:    sess.StartTime(a).Format(time.RFC3339),
		Duration: sess.Duration(a).String(),
		Ongoing:  a.Ongoing(),
	}
	if !a.Ongoing() {
		out.End = sess.EndTime(a).Format(time.RFC3339)
	}
	if t, err := s.tracker.Tasks().GetTask(a.Task); err == nil {
		out.Task = t.Name
	}
	return out
}

func eventToOutput(ev *core.Event) eventOutput {
	out := eventOutput{
		ID:     ev.ID,
		Time:   ev.Time.Format(time.RFC3339),
		Label:  ev.Label,
		Remind: ev.Remind,
		TaskID: ev.ActionTask,
	}
	switch ev.Action {
	case models.ActionDelay:
		out.Action = "delay"
	case models.ActionStart:
		out.Action = "start"
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{RepairsByKind: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time before now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
