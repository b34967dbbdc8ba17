package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

var (
	reportBillable bool
	reportWeeks    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the open week's booked time",
	Long: `Print the open week's booked time per task and per weekday.

Task totals include time booked to subtasks; OWN shows the task's own share.
--billable keeps only tasks with a booking number. --weeks lists the weeks
that have been recorded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if reportWeeks {
			if SessionStore == nil {
				return fmt.Errorf("session store not initialized")
			}
			weeks := SessionStore.Weeks(commandContext(cmd))
			if len(weeks) == 0 {
				fmt.Fprintln(out, "No weeks recorded.")
				return nil
			}
			fmt.Fprintln(out, strings.Join(weeks, "\n"))
			return nil
		}

		if err := requireTracker(); err != nil {
			return err
		}
		sess := Tracker.Session()
		fmt.Fprintf(out, "%s  %s - %s\n\n", boldText.Sprint(models.WeekKey(sess.WeekStart())),
			sess.WeekStart().Format("Mon 2 Jan"), sess.WeekEnd().Add(-time.Second).Format("Mon 2 Jan 2006"))

		totals := Tracker.Totals()
		tbl := uitable.New()
		tbl.Separator = "  "
		tbl.AddRow(boldText.Sprint("BOOKING"), boldText.Sprint("TASK"), boldText.Sprint("BOOKED"), boldText.Sprint("OWN"))
		var billable, all time.Duration
		for _, t := range totals {
			task, err := Tracker.Tasks().GetTask(t.TaskID)
			if err != nil {
				continue
			}
			all += t.Own
			if t.Billable {
				billable += t.Own
			}
			if reportBillable && !t.Billable {
				continue
			}
			booking := t.BookingNumber
			if !t.Billable {
				booking = faintText.Sprint(booking)
			}
			tbl.AddRow(booking, strings.Repeat("  ", depth(task))+t.Name, hours(t.Booked), hours(t.Own))
		}
		if len(totals) == 0 {
			fmt.Fprintln(out, "Nothing booked this week.")
		} else {
			fmt.Fprintln(out, tbl)
		}

		fmt.Fprintln(out)
		days := uitable.New()
		days.Separator = "  "
		daily := Tracker.DailyTotals()
		header := make([]any, 0, 8)
		row := make([]any, 0, 8)
		for i, d := range daily {
			header = append(header, boldText.Sprint(sess.WeekStart().AddDate(0, 0, i).Format("Mon")))
			row = append(row, hours(d))
		}
		header = append(header, boldText.Sprint("TOTAL"))
		row = append(row, hours(all))
		days.AddRow(header...)
		days.AddRow(row...)
		fmt.Fprintln(out, days)

		target := time.Duration(Tracker.Config().HoursPerWeek * float64(time.Hour))
		fmt.Fprintf(out, "\nBillable %s, target %s\n", hours(billable), hours(target))
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportBillable, "billable", false, "show only tasks with a booking number")
	reportCmd.Flags().BoolVar(&reportWeeks, "weeks", false, "list recorded weeks")
	rootCmd.AddCommand(reportCmd)
}
