package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "wt",
	Short: "weektrack - weekly time tracking",
	Long: `weektrack (wt) books working time to a tree of tasks, one calendar
week at a time.

Start and pause tasks as you switch work, correct the week's activities
afterwards with the edit commands, import meetings from Google Calendar
and print the week's totals per booking number.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wt %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// requireTracker checks the tracker is wired and moves it to the current
// week.
func requireTracker() error {
	if Tracker == nil {
		return fmt.Errorf("tracker not initialized")
	}
	if _, err := Tracker.Rollover(); err != nil {
		return fmt.Errorf("opening current week: %w", err)
	}
	return nil
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
