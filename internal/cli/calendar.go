package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/internal/integration"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Import meetings from Google Calendar",
	Long: `Import meetings from Google Calendar into the open week.

The client secrets file is read from calendar.credentials in
.weektrack.yaml (default credentials.json in the weektrack home) and the
token is stored at calendar.token (default token.json).`,
}

func calendarPaths() (credentials, token string) {
	credentials = filepath.Join(BasePath, "credentials.json")
	token = filepath.Join(BasePath, "token.json")
	if Config != nil {
		if Config.Calendar.Credentials != "" {
			credentials = Config.Calendar.Credentials
		}
		if Config.Calendar.Token != "" {
			token = Config.Calendar.Token
		}
	}
	return credentials, token
}

// googleCalendarFeed builds a feed over the configured calendar with the
// stored token.
func googleCalendarFeed(ctx context.Context) (integration.CalendarFeed, error) {
	credentials, token := calendarPaths()
	conf, err := integration.OAuthConfig(credentials)
	if err != nil {
		return nil, err
	}
	client, err := integration.HTTPClient(ctx, conf, token)
	if err != nil {
		return nil, err
	}
	calendarID := ""
	if Config != nil {
		calendarID = Config.Calendar.ID
	}
	feed, err := integration.NewGoogleCalendarFeed(ctx, client, calendarID, Tracker.Config().Loc())
	if err != nil {
		return nil, err
	}
	return feed, nil
}

var calendarAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Grant read access to your calendar",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		credentials, token := calendarPaths()
		conf, err := integration.OAuthConfig(credentials)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		tok, err := integration.Authorize(ctx, conf, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := integration.SaveToken(token, tok); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", token)
		return nil
	},
}

var calendarDryRun bool

var calendarImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Book the open week's meetings",
	Long: `Book the open week's busy calendar entries as activities. Entries are
matched to tasks by their calendar id, then by name; unmatched entries
get a new task. Entries imported before are skipped. --dry-run lists
the entries without booking them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		ctx := commandContext(cmd)
		feed, err := NewCalendarFeed(ctx)
		if err != nil {
			return fmt.Errorf("opening calendar: %w", err)
		}
		sess := Tracker.Session()
		cands, err := feed.Candidates(ctx, sess.WeekStart(), sess.WeekEnd())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if calendarDryRun {
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(boldText.Sprint("DAY"), boldText.Sprint("FROM"), boldText.Sprint("TO"), boldText.Sprint("ENTRY"))
			for _, c := range cands {
				from, to := c.Start.Format("15:04"), c.End.Format("15:04")
				if c.AllDay {
					from, to = "all day", ""
				}
				entry := c.TaskHint
				if !c.Busy {
					entry = faintText.Sprint(entry + " (free)")
				}
				tbl.AddRow(c.Start.Format("Mon"), from, to, entry)
			}
			fmt.Fprintln(out, tbl)
			return nil
		}

		res, err := Tracker.Import(cands, core.NameMatcher{Tasks: Tracker.Tasks()})
		if err != nil {
			return fmt.Errorf("importing calendar: %w", err)
		}
		if err := Tracker.Persist(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Imported %d entries (%d linked, %d skipped, %d new tasks)\n",
			res.Created, res.Linked, res.Skipped, res.NewTasks)
		return nil
	},
}

func init() {
	calendarImportCmd.Flags().BoolVar(&calendarDryRun, "dry-run", false, "list entries without booking them")
	calendarCmd.AddCommand(calendarAuthCmd, calendarImportCmd)
	rootCmd.AddCommand(calendarCmd)
}
