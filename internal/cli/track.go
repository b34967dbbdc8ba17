package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

var startCmd = &cobra.Command{
	Use:   "start <task>",
	Short: "Start booking time on a task",
	Long: `Start booking time on a task, given by id or exact name. The running
activity, if any, ends now.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		a, err := Tracker.Session().StartTask(id)
		if err != nil {
			return fmt.Errorf("starting task %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s at %s\n",
			formatTaskRef(a.Task), Tracker.Session().StartTime(a).Format("15:04"))
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "End the running activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		a, err := Tracker.Session().Pause()
		if err != nil {
			if errors.Is(err, core.ErrNoCurrentActivity) {
				return fmt.Errorf("nothing is running")
			}
			return fmt.Errorf("pausing: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Paused %s after %s\n",
			formatTaskRef(a.Task), hours(Tracker.Session().Duration(a)))
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Restart the task that was running before the last pause",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		a, err := Tracker.Session().Resume()
		if err != nil {
			if errors.Is(err, core.ErrNothingToResume) {
				return fmt.Errorf("no paused task to resume")
			}
			return fmt.Errorf("resuming: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resumed %s\n", formatTaskRef(a.Task))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running activity and today's booked time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		sess := Tracker.Session()
		if cur, ok := sess.Current(); ok {
			fmt.Fprintf(out, "%s %s since %s (%s)\n", okText.Sprint("Running:"), formatTaskRef(cur.Task),
				sess.StartTime(cur).Format("15:04"), hours(sess.Duration(cur)))
		} else if prev := sess.PreviousTask(); prev != 0 {
			fmt.Fprintf(out, "%s paused %s\n", warnText.Sprint("Idle:"), formatTaskRef(prev))
		} else {
			fmt.Fprintln(out, faintText.Sprint("Idle"))
		}

		loc := Tracker.Config().Loc()
		daily := Tracker.DailyTotals()
		today := int(Tracker.Now().In(loc).Weekday()+6) % 7
		var week time.Duration
		for _, d := range daily {
			week += d
		}
		fmt.Fprintf(out, "Today: %s  Week %s: %s of %s\n", hours(daily[today]),
			models.WeekKey(sess.WeekStart()), hours(week), hours(time.Duration(Tracker.Config().HoursPerWeek*float64(time.Hour))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, pauseCmd, resumeCmd, statusCmd)
}
