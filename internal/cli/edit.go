package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Correct the activities and events of the open week",
	Long: `Correct the week after the fact. Activities and events are addressed
by the ids shown by 'wt edit list'. Times are HH:MM (today) or
YYYY-MM-DD HH:MM.`,
}

// finishEdit saves the session and prints msg.
func finishEdit(cmd *cobra.Command, msg string, args ...any) error {
	if err := Tracker.Persist(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), msg+"\n", args...)
	return nil
}

var editListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the week's activities and marked events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		sess := Tracker.Session()

		tbl := uitable.New()
		tbl.Separator = "  "
		tbl.AddRow(boldText.Sprint("ACT"), boldText.Sprint("DAY"), boldText.Sprint("FROM"), boldText.Sprint("TO"),
			boldText.Sprint("EVENTS"), boldText.Sprint("TIME"), boldText.Sprint("BOOKED"), boldText.Sprint("TASK"))
		for _, a := range sess.Activities() {
			start := sess.StartTime(a)
			to := "now"
			if !a.Ongoing() {
				to = sess.EndTime(a).Format("15:04")
			}
			events := fmt.Sprintf("%d-%d", a.Start, a.End)
			if a.Ongoing() {
				events = fmt.Sprintf("%d-", a.Start)
			}
			booked := hours(sess.Booked(a))
			if a.Allocation > 0 {
				booked += fmt.Sprintf(" (%.0f%%)", a.Allocation*100)
			}
			tbl.AddRow(a.ID, start.Format("Mon"), start.Format("15:04"), to, events,
				hours(sess.Duration(a)), booked, taskName(a.Task))
		}
		tbl.RightAlign(0)
		fmt.Fprintln(out, tbl)

		marked := uitable.New()
		marked.Separator = "  "
		n := 0
		for _, ev := range sess.Events() {
			if ev.Label == "" && !ev.Remind && ev.Action == models.ActionNone {
				continue
			}
			var flags []string
			if ev.Remind {
				flags = append(flags, "remind")
			}
			switch ev.Action {
			case models.ActionDelay:
				flags = append(flags, "delay")
			case models.ActionStart:
				flags = append(flags, "start "+taskName(ev.ActionTask))
			}
			marked.AddRow(ev.ID, ev.Time.Format("Mon 15:04"), ev.Label, faintText.Sprint(strings.Join(flags, ", ")))
			n++
		}
		if n > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, boldText.Sprint("Events"))
			marked.RightAlign(0)
			fmt.Fprintln(out, marked)
		}
		return nil
	},
}

var editAddCmd = &cobra.Command{
	Use:   "add <task> <from> <to>",
	Short: "Book a finished activity",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		task, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		loc := Tracker.Config().Loc()
		from, err := parseWhen(args[1], Tracker.Now(), loc)
		if err != nil {
			return err
		}
		to, err := parseWhen(args[2], Tracker.Now(), loc)
		if err != nil {
			return err
		}
		if !to.After(from) {
			return fmt.Errorf("end %s must be after start %s", args[2], args[1])
		}
		sess := Tracker.Session()
		if from.Before(sess.WeekStart()) || !to.Before(sess.WeekEnd()) {
			return fmt.Errorf("activity must lie within week %s", models.WeekKey(sess.WeekStart()))
		}
		start := sess.NewEvent(from, "")
		end := sess.NewEvent(to, "")
		a, err := sess.NewActivity(task, start.ID, end.ID)
		if err != nil {
			sess.TryDelete(start.ID)
			sess.TryDelete(end.ID)
			return fmt.Errorf("adding activity: %w", err)
		}
		return finishEdit(cmd, "Added activity %d: %s %s-%s", a.ID, taskName(task),
			from.Format("Mon 15:04"), to.Format("15:04"))
	},
}

var editSplitCmd = &cobra.Command{
	Use:   "split <activity> <time>",
	Short: "Cut an activity in two at a time",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		at, err := parseWhen(args[1], Tracker.Now(), Tracker.Config().Loc())
		if err != nil {
			return err
		}
		sess := Tracker.Session()
		ev := sess.NewEvent(at, "")
		first, err := sess.Split(id, ev.ID)
		if err != nil {
			sess.TryDelete(ev.ID)
			return fmt.Errorf("splitting activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Split activity %d at %s; first part is activity %d", id, at.Format("15:04"), first.ID)
	},
}

var editMergeCmd = &cobra.Command{
	Use:   "merge <event>",
	Short: "Join the activities meeting at an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("event", args[0])
		if err != nil {
			return err
		}
		extended, err := Tracker.Session().Merge(id)
		if err != nil {
			return fmt.Errorf("merging at event %d: %w", id, err)
		}
		return finishEdit(cmd, "Merged at event %d, %d activities extended", id, len(extended))
	},
}

var editFoldCmd = &cobra.Command{
	Use:   "fold <event>",
	Short: "Fold nearby events into one",
	Long:  "Fold every event within the configured merge window of an event into it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("event", args[0])
		if err != nil {
			return err
		}
		n, err := Tracker.Session().MergeEvents(id)
		if err != nil {
			return fmt.Errorf("folding events into %d: %w", id, err)
		}
		return finishEdit(cmd, "Folded %d events into event %d", n, id)
	},
}

var editSwapCmd = &cobra.Command{
	Use:   "swap <activity>",
	Short: "Exchange the ends of an activity that ends before it starts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		if err := Tracker.Session().Swap(id); err != nil {
			return fmt.Errorf("swapping activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Swapped activity %d", id)
	},
}

var editExpandCmd = &cobra.Command{
	Use:   "expand <event>",
	Short: "Stretch an open chain end to its neighbour",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("event", args[0])
		if err != nil {
			return err
		}
		if err := Tracker.Session().Expand(id); err != nil {
			return fmt.Errorf("expanding event %d: %w", id, err)
		}
		return finishEdit(cmd, "Expanded event %d", id)
	},
}

var editFillCmd = &cobra.Command{
	Use:   "fill <activity>",
	Short: "Stretch an activity over its whole working day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		if err := Tracker.Session().OccupyFullDay(id); err != nil {
			return fmt.Errorf("filling day with activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Activity %d now spans the working day", id)
	},
}

var editDeleteCmd = &cobra.Command{
	Use:   "delete <activity>",
	Short: "Remove an activity and its booked time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		if err := Tracker.Session().DeleteActivity(id); err != nil {
			return fmt.Errorf("deleting activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Deleted activity %d", id)
	},
}

var editRebindCmd = &cobra.Command{
	Use:   "rebind <activity> <task>",
	Short: "Book an activity to another task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		task, err := resolveTask(args[1])
		if err != nil {
			return err
		}
		if err := Tracker.Session().Rebind(id, task); err != nil {
			return fmt.Errorf("rebinding activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Activity %d booked to %s", id, formatTaskRef(task))
	},
}

var editStartCmd = &cobra.Command{
	Use:   "start <activity> <event>",
	Short: "Start an activity at another event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		event, err := parseID("event", args[1])
		if err != nil {
			return err
		}
		if err := Tracker.Session().ChangeStart(id, event); err != nil {
			return fmt.Errorf("changing start of activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Activity %d %s", id, describeSpan(id))
	},
}

var editEndCmd = &cobra.Command{
	Use:   "end <activity> <event|now>",
	Short: "End an activity at another event",
	Long:  `End an activity at another event. "now" makes it the running activity, closing any other.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		event := core.NowID
		if args[1] != "now" {
			if event, err = parseID("event", args[1]); err != nil {
				return err
			}
		}
		if err := Tracker.Session().ChangeEnd(id, event); err != nil {
			return fmt.Errorf("changing end of activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Activity %d %s", id, describeSpan(id))
	},
}

// describeSpan renders an activity's interval after an edit, e.g.
// "Tue 09:00-12:00" or "Tue 09:00-now".
func describeSpan(id int) string {
	sess := Tracker.Session()
	a, ok := sess.Activity(id)
	if !ok {
		return "removed"
	}
	end := "now"
	if !a.Ongoing() {
		end = sess.EndTime(a).Format("15:04")
	}
	return sess.StartTime(a).Format("Mon 15:04") + "-" + end
}

var editAllocCmd = &cobra.Command{
	Use:   "alloc <activity> <fraction>",
	Short: "Override the fraction of an activity booked to its task",
	Long:  "Override the fraction (0..1] of an activity booked to its task. 0 restores the task's allocation.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("activity", args[0])
		if err != nil {
			return err
		}
		frac, err := strconv.ParseFloat(args[1], 64)
		if err != nil || frac < 0 || frac > 1 {
			return fmt.Errorf("invalid fraction %q, want a number between 0 and 1", args[1])
		}
		if err := Tracker.Session().SetAllocation(id, frac); err != nil {
			return fmt.Errorf("setting allocation of activity %d: %w", id, err)
		}
		return finishEdit(cmd, "Activity %d allocation set to %g", id, frac)
	},
}

var editMoveCmd = &cobra.Command{
	Use:   "move <event> <time>",
	Short: "Move an event, re-measuring its activities",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("event", args[0])
		if err != nil {
			return err
		}
		at, err := parseWhen(args[1], Tracker.Now(), Tracker.Config().Loc())
		if err != nil {
			return err
		}
		if err := Tracker.Session().SetEventTime(id, at); err != nil {
			return fmt.Errorf("moving event %d: %w", id, err)
		}
		return finishEdit(cmd, "Event %d moved to %s", id, at.Format("Mon 15:04"))
	},
}

var editLabelCmd = &cobra.Command{
	Use:   "label <event> [label]",
	Short: "Label an event, or clear its label",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("event", args[0])
		if err != nil {
			return err
		}
		label := ""
		if len(args) == 2 {
			label = args[1]
		}
		if err := Tracker.Session().SetLabel(id, label); err != nil {
			return fmt.Errorf("labelling event %d: %w", id, err)
		}
		return finishEdit(cmd, "Event %d labelled %q", id, label)
	},
}

var (
	eventAt    string
	eventLabel string
	eventOff   bool
	eventTask  string
)

var editRemindCmd = &cobra.Command{
	Use:   "remind [event]",
	Short: "Flag an event for a reminder",
	Long: `Flag an existing event for a reminder, or create a labelled one with
--at. --off clears the reminder.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		sess := Tracker.Session()
		var id int
		switch {
		case len(args) == 1:
			var err error
			if id, err = parseID("event", args[0]); err != nil {
				return err
			}
		case eventAt != "":
			at, err := parseWhen(eventAt, Tracker.Now(), Tracker.Config().Loc())
			if err != nil {
				return err
			}
			if eventLabel == "" {
				return fmt.Errorf("a new reminder needs --label")
			}
			id = sess.NewEvent(at, eventLabel).ID
		default:
			return fmt.Errorf("give an event id or --at")
		}
		if err := sess.SetRemind(id, !eventOff); err != nil {
			return fmt.Errorf("setting reminder on event %d: %w", id, err)
		}
		if eventOff {
			return finishEdit(cmd, "Reminder on event %d cleared", id)
		}
		return finishEdit(cmd, "Reminder set on event %d", id)
	},
}

var editActionCmd = &cobra.Command{
	Use:   "action <event> <none|delay|start>",
	Short: "Attach a pending action to an event",
	Long: `Attach a pending action to an event. 'delay' keeps pushing the event
forward while it is overdue; 'start' starts --task once the event time has
passed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := parseID("event", args[0])
		if err != nil {
			return err
		}
		var action models.ActionKind
		task := 0
		switch args[1] {
		case "none":
			action = models.ActionNone
		case "delay":
			action = models.ActionDelay
		case "start":
			action = models.ActionStart
			if eventTask == "" {
				return fmt.Errorf("action start needs --task")
			}
			if task, err = resolveTask(eventTask); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown action %q, want none, delay or start", args[1])
		}
		if err := Tracker.Session().SetAction(id, action, task); err != nil {
			return fmt.Errorf("setting action on event %d: %w", id, err)
		}
		return finishEdit(cmd, "Event %d action set to %s", id, args[1])
	},
}

var editCollectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Drop unreferenced unlabelled events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		n := Tracker.Session().CollectGarbage()
		return finishEdit(cmd, "Dropped %d events", n)
	},
}

func init() {
	editRemindCmd.Flags().StringVar(&eventAt, "at", "", "create a new event at this time")
	editRemindCmd.Flags().StringVar(&eventLabel, "label", "", "label of the new event")
	editRemindCmd.Flags().BoolVar(&eventOff, "off", false, "clear the reminder")
	editActionCmd.Flags().StringVar(&eventTask, "task", "", "task to start, id or name")

	editCmd.AddCommand(editListCmd, editAddCmd, editSplitCmd, editMergeCmd, editFoldCmd, editSwapCmd,
		editExpandCmd, editFillCmd, editDeleteCmd, editRebindCmd, editStartCmd, editEndCmd, editAllocCmd, editMoveCmd,
		editLabelCmd, editRemindCmd, editActionCmd, editCollectCmd)
	rootCmd.AddCommand(editCmd)
}
