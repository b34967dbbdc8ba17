package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/internal/observability"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

var (
	doctorFix    bool
	doctorNotify bool
	doctorSince  time.Duration
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the open week for problems",
	Long: `Check the open week for problems: diagnostics raised while loading it,
graph invariants, and alerts derived from the event log.

--fix runs the consistency repairs again and saves the result. --notify
posts active alerts to Slack.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if doctorFix {
			rep := Tracker.Session().Normalise()
			if rep.Changed() {
				if err := Tracker.Persist(); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Repairs: %d unfinished, %d overnight, %d joined, %d reordered, %d events dropped\n\n",
				rep.Unfinished, rep.Overnight, rep.Joined, rep.Reordered, rep.Collected)
		}

		problems := 0
		if Diagnostics != nil {
			items := Diagnostics.Items()
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.MaxColWidth = 80
			tbl.Wrap = true
			shown := 0
			for _, d := range items {
				if d.Severity == models.SeverityInfo {
					continue
				}
				tbl.AddRow(severityColor(d.Severity).Sprint(d.Severity), faintText.Sprint(d.Code), d.Message)
				shown++
			}
			if shown > 0 {
				fmt.Fprintln(out, boldText.Sprint("Diagnostics"))
				fmt.Fprintln(out, tbl)
				fmt.Fprintln(out)
				problems += shown
			}
		}

		if err := Tracker.Session().CheckInvariants(); err != nil {
			fmt.Fprintf(out, "%s %s\n", errorText.Sprint("invariant:"), err)
			problems++
		}

		if AlertEngine != nil {
			alerts, err := AlertEngine.Evaluate(Tracker.Now())
			if err != nil {
				return fmt.Errorf("evaluating alerts: %w", err)
			}
			for _, a := range alerts {
				fmt.Fprintf(out, "%s %s\n", alertColor(a.Severity).Sprintf("[%s]", a.Severity), a.Message)
			}
			problems += len(alerts)
			if doctorNotify && len(alerts) > 0 {
				if Notifier == nil {
					return fmt.Errorf("notifications are not configured")
				}
				if err := Notifier.NotifyAlerts(commandContext(cmd), alerts); err != nil {
					return fmt.Errorf("sending alerts: %w", err)
				}
			}
		}

		if MetricsCalc != nil {
			m, err := MetricsCalc.Calculate(Tracker.Now().Add(-doctorSince))
			if err != nil {
				return fmt.Errorf("calculating metrics: %w", err)
			}
			printMetrics(cmd, m)
		}

		if problems == 0 {
			fmt.Fprintln(out, okText.Sprint("No problems found."))
		}
		return nil
	},
}

func printMetrics(cmd *cobra.Command, m *observability.Metrics) {
	out := cmd.OutOrStdout()
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("activities started", m.ActivitiesStarted)
	tbl.AddRow("activities paused", m.ActivitiesPaused)
	tbl.AddRow("carried over midnight", m.ActivitiesContinued)
	tbl.AddRow("reminders due", m.RemindersDue)
	tbl.AddRow("events delayed", m.EventsDelayed)
	tbl.AddRow("calendar imports", fmt.Sprintf("%d (%d skipped)", m.Imported, m.ImportSkipped))
	tbl.AddRow("repairs", m.Repairs)
	kinds := make([]string, 0, len(m.RepairsByKind))
	for k := range m.RepairsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		tbl.AddRow(faintText.Sprint("  "+k), m.RepairsByKind[k])
	}
	tbl.AddRow("load problems", m.LoadProblems)
	tbl.AddRow("failed saves", m.PersistFailures)
	tbl.AddRow("failed notifications", m.NotifyFailures)
	fmt.Fprintln(out)
	fmt.Fprintln(out, boldText.Sprint("Event log"))
	fmt.Fprintln(out, tbl)
	fmt.Fprintln(out)
}

func alertColor(sev observability.AlertSeverity) *color.Color {
	switch sev {
	case observability.SeverityHigh:
		return errorText
	case observability.SeverityMedium:
		return warnText
	default:
		return infoText
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "run the consistency repairs and save")
	doctorCmd.Flags().BoolVar(&doctorNotify, "notify", false, "post active alerts to Slack")
	doctorCmd.Flags().DurationVar(&doctorSince, "since", 7*24*time.Hour, "event log window for metrics")
	rootCmd.AddCommand(doctorCmd)
}
