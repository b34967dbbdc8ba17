package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

var (
	boldText  = color.New(color.Bold)
	faintText = color.New(color.Faint)
	infoText  = color.New(color.FgCyan)
	warnText  = color.New(color.FgYellow)
	errorText = color.New(color.FgRed, color.Bold)
	okText    = color.New(color.FgGreen)
)

// resolveTask accepts a task id or an exact task name.
func resolveTask(arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		if _, err := Tracker.Tasks().GetTask(id); err != nil {
			return 0, err
		}
		return id, nil
	}
	t, ok := Tracker.Tasks().FindByName(arg)
	if !ok {
		return 0, fmt.Errorf("no task named %q", arg)
	}
	return t.ID, nil
}

// parseID parses a positive activity or event id.
func parseID(kind, arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, arg)
	}
	return id, nil
}

// parseWhen reads "15:04" as a time today or "2006-01-02 15:04" as a full
// timestamp, both in loc.
func parseWhen(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want HH:MM or YYYY-MM-DD HH:MM", s)
	}
	now = now.In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// hours formats d as H:MM.
func hours(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// depth counts the ancestors of a task.
func depth(t *models.Task) int {
	n := 0
	for p := t.Parent; p != 0; n++ {
		parent, err := Tracker.Tasks().GetTask(p)
		if err != nil {
			break
		}
		p = parent.Parent
	}
	return n
}

func taskName(id int) string {
	return taskNameIn(Tracker, id)
}

func severityColor(sev models.Severity) *color.Color {
	switch sev {
	case models.SeverityError:
		return errorText
	case models.SeverityWarning:
		return warnText
	default:
		return infoText
	}
}
